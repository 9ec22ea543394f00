package execution

import (
	"sync"
	"testing"
	"time"

	"github.com/pricegrid/taskcore/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContext(t *testing.T) {
	c := NewContext("task-1")

	assert.Equal(t, "task-1", c.TaskID())
	assert.False(t, c.Paused())
	assert.False(t, c.Stopped())
	assert.Equal(t, time.Duration(0), c.ActiveDuration())
}

func TestPauseResume(t *testing.T) {
	c := NewContext("task-1")

	assert.True(t, c.Pause())
	assert.True(t, c.Paused())
	assert.False(t, c.Pause(), "double pause must be rejected")

	assert.True(t, c.Resume())
	assert.False(t, c.Paused())
	assert.False(t, c.Resume(), "resume without pause must be rejected")
}

func TestPauseAfterStopRejected(t *testing.T) {
	c := NewContext("task-1")

	c.Stop()

	assert.True(t, c.Stopped())
	assert.False(t, c.Pause())
}

func TestStopIsIdempotent(t *testing.T) {
	c := NewContext("task-1")

	c.Stop()
	c.Stop()

	assert.True(t, c.Stopped())
}

func TestWaitPassesWhenOpen(t *testing.T) {
	c := NewContext("task-1")

	assert.True(t, c.Wait())
}

func TestWaitReturnsFalseAfterStop(t *testing.T) {
	c := NewContext("task-1")

	c.Stop()

	assert.False(t, c.Wait())
}

func TestWaitBlocksUntilResume(t *testing.T) {
	c := NewContext("task-1")
	require.True(t, c.Pause())

	released := make(chan bool, 1)
	go func() {
		released <- c.Wait()
	}()

	select {
	case <-released:
		t.Fatal("Wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, c.Resume())

	select {
	case ok := <-released:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after resume")
	}
}

func TestWaitWakesOnStopWhilePaused(t *testing.T) {
	c := NewContext("task-1")
	require.True(t, c.Pause())

	released := make(chan bool, 1)
	go func() {
		released <- c.Wait()
	}()

	time.Sleep(20 * time.Millisecond)
	c.Stop()

	select {
	case ok := <-released:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake after stop")
	}
}

func TestActiveDurationExcludesPauses(t *testing.T) {
	c := NewContext("task-1")
	c.MarkStarted()

	time.Sleep(30 * time.Millisecond)
	require.True(t, c.Pause())
	time.Sleep(50 * time.Millisecond)
	require.True(t, c.Resume())
	time.Sleep(20 * time.Millisecond)

	active := c.ActiveDuration()
	paused := c.PausedDuration()

	assert.InDelta(t, 50*time.Millisecond, float64(paused), float64(25*time.Millisecond))
	assert.InDelta(t, 50*time.Millisecond, float64(active), float64(25*time.Millisecond))
}

func TestPausedDurationCountsInProgressPause(t *testing.T) {
	c := NewContext("task-1")

	require.True(t, c.Pause())
	time.Sleep(30 * time.Millisecond)

	assert.GreaterOrEqual(t, c.PausedDuration(), 25*time.Millisecond)
}

func TestUpdateProgressNotifiesCallbacks(t *testing.T) {
	c := NewContext("task-1")

	var mu sync.Mutex
	var seen []task.Progress
	c.OnProgress(func(p task.Progress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})

	c.UpdateProgress(25, "fetching")
	c.UpdateProgress(50, "fetching")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, 25.0, seen[0].Percentage)
	assert.Equal(t, "fetching", seen[0].CurrentStep)
	assert.Equal(t, 50.0, seen[1].Percentage)
}

func TestUpdateProgressTracksStepTiming(t *testing.T) {
	c := NewContext("task-1")

	c.UpdateProgress(10, "download")
	time.Sleep(20 * time.Millisecond)
	c.UpdateProgress(60, "parse")

	p := c.Progress()
	assert.Equal(t, "parse", p.CurrentStep)
	assert.GreaterOrEqual(t, p.StepDuration, 15*time.Millisecond)
	assert.False(t, p.StepStartTime.IsZero())
}

func TestPanickingCallbackDoesNotAbortOthers(t *testing.T) {
	c := NewContext("task-1")

	called := false
	c.OnProgress(func(task.Progress) { panic("listener blew up") })
	c.OnProgress(func(task.Progress) { called = true })

	c.UpdateProgress(10, "")

	assert.True(t, called)
}

func TestSetItemsAndSteps(t *testing.T) {
	c := NewContext("task-1")

	c.SetItems(3, 10)
	c.SetSteps(1, 4)

	p := c.Progress()
	assert.Equal(t, 3, p.ProcessedItems)
	assert.Equal(t, 10, p.TotalItems)
	assert.Equal(t, 1, p.CompletedSteps)
	assert.Equal(t, 4, p.TotalSteps)
	assert.InDelta(t, 30.0, p.Percent(), 0.001)
}

func TestForceComplete(t *testing.T) {
	c := NewContext("task-1")
	c.SetItems(3, 10)

	c.ForceComplete()

	p := c.Progress()
	assert.Equal(t, 100.0, p.Percentage)
	assert.Equal(t, 10, p.ProcessedItems)
	assert.InDelta(t, 100.0, p.Percent(), 0.001)
}

func TestConcurrentPauseResumeStop(t *testing.T) {
	c := NewContext("task-1")
	c.MarkStarted()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Pause()
				c.Resume()
				c.Wait()
			}
		}()
	}
	wg.Wait()

	c.Stop()
	assert.False(t, c.Wait())
}

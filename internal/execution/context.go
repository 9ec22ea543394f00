// Package execution provides the per-task synchronization context: pause and
// stop signaling, active-time accounting and progress bookkeeping. Each
// context is owned by exactly one task and is never reused.
package execution

import (
	"log"
	"sync"
	"time"

	"github.com/pricegrid/taskcore/internal/task"
)

// ProgressFunc receives a progress snapshot after each update.
type ProgressFunc func(task.Progress)

// Context carries the cooperative control state for one running task.
// Pausing closes a manual-reset gate that control-point checks block on;
// resuming or stopping opens it again. The stop flag is monotonic: once set
// it is never cleared, and it wakes any waiter so nothing blocks forever.
type Context struct {
	taskID string

	mu          sync.Mutex
	paused      bool
	stopped     bool
	resumeCh    chan struct{} // replaced on each pause, closed on resume
	stopCh      chan struct{} // closed exactly once on stop
	startedAt   time.Time
	finishedAt  time.Time
	pauseStart  time.Time
	pausedTotal time.Duration
	progress    task.Progress
	callbacks   []ProgressFunc
}

func NewContext(taskID string) *Context {
	return &Context{
		taskID: taskID,
		stopCh: make(chan struct{}),
	}
}

func (c *Context) TaskID() string {
	return c.taskID
}

// MarkStarted records the moment active-time accounting begins.
func (c *Context) MarkStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.startedAt.IsZero() {
		c.startedAt = time.Now()
	}
}

// Pause closes the gate. Returns false if the context is already paused
// or stopped.
func (c *Context) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused || c.stopped {
		return false
	}

	c.paused = true
	c.pauseStart = time.Now()
	c.resumeCh = make(chan struct{})
	return true
}

// Resume opens the gate and folds the pause interval into the paused total.
// Returns false if the context is not paused.
func (c *Context) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		return false
	}

	c.paused = false
	c.pausedTotal += time.Since(c.pauseStart)
	close(c.resumeCh)
	return true
}

// Stop sets the stop flag and wakes any waiter. Safe to call more than once.
func (c *Context) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	c.stopped = true
	if c.paused {
		c.paused = false
		c.pausedTotal += time.Since(c.pauseStart)
	}
	if c.finishedAt.IsZero() {
		c.finishedAt = time.Now()
	}
	close(c.stopCh)
}

// MarkFinished freezes active-time accounting. Called by the controller
// when the task reaches a terminal state.
func (c *Context) MarkFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finishedAt.IsZero() {
		c.finishedAt = time.Now()
	}
}

func (c *Context) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Context) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Wait blocks while the gate is closed and reports whether the caller may
// continue. A false return means the task was stopped.
func (c *Context) Wait() bool {
	for {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return false
		}
		if !c.paused {
			c.mu.Unlock()
			return true
		}
		resume := c.resumeCh
		c.mu.Unlock()

		select {
		case <-resume:
		case <-c.stopCh:
		}
	}
}

// PausedDuration returns the accumulated time spent paused, including an
// in-progress pause.
func (c *Context) PausedDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.pausedTotal
	if c.paused {
		total += time.Since(c.pauseStart)
	}
	return total
}

// ActiveDuration returns wall time since start minus the paused total.
// Zero before the task started.
func (c *Context) ActiveDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.startedAt.IsZero() {
		return 0
	}
	end := time.Now()
	if !c.finishedAt.IsZero() {
		end = c.finishedAt
	}
	paused := c.pausedTotal
	if c.paused {
		paused += time.Since(c.pauseStart)
	}
	return end.Sub(c.startedAt) - paused
}

// OnProgress registers a callback invoked with a snapshot after each
// progress update. Callbacks run outside the context lock; a panicking
// callback is logged and does not abort the remaining ones.
func (c *Context) OnProgress(fn ProgressFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// UpdateProgress sets the reported percentage and step label, tracking step
// timing when the label changes, then notifies progress callbacks.
func (c *Context) UpdateProgress(percentage float64, step string) {
	c.mu.Lock()
	now := time.Now()
	c.progress.Percentage = percentage
	if step != "" && step != c.progress.CurrentStep {
		if !c.progress.StepStartTime.IsZero() {
			c.progress.StepDuration = now.Sub(c.progress.StepStartTime)
		}
		c.progress.CurrentStep = step
		c.progress.StepStartTime = now
	}
	c.notifyLocked()
}

// SetItems records item-based progress counters and notifies callbacks.
func (c *Context) SetItems(processed, total int) {
	c.mu.Lock()
	c.progress.ProcessedItems = processed
	c.progress.TotalItems = total
	c.notifyLocked()
}

// SetSteps records step-based progress counters and notifies callbacks.
func (c *Context) SetSteps(completed, total int) {
	c.mu.Lock()
	c.progress.CompletedSteps = completed
	c.progress.TotalSteps = total
	c.notifyLocked()
}

// ForceComplete pins the progress record at 100% without firing callbacks.
// The controller calls it when work returns successfully.
func (c *Context) ForceComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.progress.Percentage = 100
	if c.progress.TotalItems > 0 {
		c.progress.ProcessedItems = c.progress.TotalItems
	}
	if c.progress.TotalSteps > 0 {
		c.progress.CompletedSteps = c.progress.TotalSteps
	}
}

// Progress returns a copy of the current progress record.
func (c *Context) Progress() task.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// notifyLocked snapshots state, releases the lock and invokes callbacks.
// Callers must hold c.mu; it is unlocked on return.
func (c *Context) notifyLocked() {
	snapshot := c.progress
	callbacks := make([]ProgressFunc, len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.Unlock()

	for _, fn := range callbacks {
		c.safeCall(fn, snapshot)
	}
}

func (c *Context) safeCall(fn ProgressFunc, p task.Progress) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("progress callback for task %s panicked: %v", c.taskID, r)
		}
	}()
	fn(p)
}

// Package checkpoint implements the cooperative control point that running
// work items call at high frequency to honor pause and stop requests.
package checkpoint

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pricegrid/taskcore/internal/execution"
)

// DefaultInterval bounds how often Check inspects the real context state.
// Calls arriving inside the interval reuse the previous verdict, which keeps
// the per-call cost well under a millisecond in tight loops while still
// observing a pending stop or pause within one interval.
const DefaultInterval = time.Millisecond

// Checker tracks the cooperative state of registered tasks. The controller
// registers each task's execution context at creation, so task identity has
// a single source of truth; checks against unknown ids simply deny.
type Checker struct {
	interval time.Duration

	mu     sync.RWMutex
	states map[string]*state
}

type state struct {
	ctx      *execution.Context
	lastNano atomic.Int64
	verdict  atomic.Bool
}

func NewChecker(interval time.Duration) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Checker{
		interval: interval,
		states:   make(map[string]*state),
	}
}

// Register makes ec's task known to the checker. Re-registering an id
// replaces its state.
func (c *Checker) Register(ec *execution.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[ec.TaskID()] = &state{ctx: ec}
}

// Unregister forgets a task. Subsequent checks for the id return false.
func (c *Checker) Unregister(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, taskID)
}

// Check reports whether the work item for taskID may continue. It returns
// false once the task is stopped or unknown, and blocks while the task is
// paused until it is resumed or stopped.
func (c *Checker) Check(taskID string) bool {
	c.mu.RLock()
	st := c.states[taskID]
	c.mu.RUnlock()

	if st == nil {
		return false
	}

	now := time.Now().UnixNano()
	if now-st.lastNano.Load() < int64(c.interval) {
		return st.verdict.Load()
	}
	st.lastNano.Store(now)

	ok := st.ctx.Wait()
	st.verdict.Store(ok)
	return ok
}

// ReportProgress clamps percentage to [0,100] and forwards it to the owning
// execution context. Unknown ids are ignored.
func (c *Checker) ReportProgress(taskID string, percentage float64, message string) {
	c.mu.RLock()
	st := c.states[taskID]
	c.mu.RUnlock()

	if st == nil {
		return
	}

	if percentage < 0 {
		percentage = 0
	} else if percentage > 100 {
		percentage = 100
	}
	st.ctx.UpdateProgress(percentage, message)
}

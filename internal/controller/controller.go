// Package controller implements the task registry and lifecycle control
// core: task creation, worker-pool submission, pause/resume/stop control and
// event fan-out to registered listeners.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/pricegrid/taskcore/internal/checkpoint"
	"github.com/pricegrid/taskcore/internal/event"
	"github.com/pricegrid/taskcore/internal/execution"
	"github.com/pricegrid/taskcore/internal/pool"
	"github.com/pricegrid/taskcore/internal/task"
)

// ErrInvalidWork is returned by CreateTask when the work item is nil.
var ErrInvalidWork = errors.New("work item must not be nil")

// WorkFunc is the caller-supplied unit of work. It receives the task's
// execution context and should periodically call the control-point check to
// honor cooperative pause and stop. Returning task.ErrAborted records the
// task as stopped rather than failed.
type WorkFunc func(ec *execution.Context) (any, error)

// managed bundles a task record with the state the controller tracks for it.
type managed struct {
	task *task.Task
	ec   *execution.Context
	work WorkFunc
	job  *pool.Job

	// Event delivery is ordered per task: each event takes a sequence
	// number under the registry lock and is delivered outside all locks
	// once every earlier event for this task has been delivered.
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	nextSeq    uint64
	doneSeq    uint64
}

func newManaged(t *task.Task, ec *execution.Context, work WorkFunc) *managed {
	m := &managed{task: t, ec: ec, work: work}
	m.notifyCond = sync.NewCond(&m.notifyMu)
	return m
}

// Controller owns the task map and coordinates the worker pool, the
// control-point checker and the listener set. Construct one per process and
// pass it to collaborators; there is no package-level instance.
type Controller struct {
	mu        sync.Mutex
	tasks     map[string]*managed
	listeners []event.Listener

	pool    *pool.Pool
	checker *checkpoint.Checker
}

// New builds a controller backed by a worker pool of the given size and
// starts the pool.
func New(workers int) *Controller {
	c := &Controller{
		tasks:   make(map[string]*managed),
		pool:    pool.NewPool(workers),
		checker: checkpoint.NewChecker(0),
	}
	c.pool.Start()
	return c
}

// Checker exposes the control-point helper that work items call.
func (c *Controller) Checker() *checkpoint.Checker {
	return c.checker
}

// Shutdown stops the worker pool, waiting for in-flight work up to the
// context deadline.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.pool.Stop(ctx)
}

// CreateTask registers a new pending task and notifies listeners.
func (c *Controller) CreateTask(name string, work WorkFunc) (string, error) {
	if work == nil {
		return "", ErrInvalidWork
	}

	t := task.NewTask(name)
	ec := execution.NewContext(t.ID)
	m := newManaged(t, ec, work)

	c.checker.Register(ec)
	ec.OnProgress(func(task.Progress) {
		c.onProgress(t.ID)
	})

	c.mu.Lock()
	c.tasks[t.ID] = m
	info := c.snapshotLocked(m)
	c.deliverLocked(m, func(l event.Listener) { l.OnTaskCreated(info) })

	return t.ID, nil
}

// StartTask moves a pending task onto the worker pool, or reopens the gate
// of a paused one. Returns false for unknown ids and illegal transitions.
func (c *Controller) StartTask(taskID string) bool {
	c.mu.Lock()
	m, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return false
	}

	switch m.task.Status {
	case task.StatusPending:
		job, err := c.pool.Submit(func() { c.run(taskID) })
		if err != nil {
			c.mu.Unlock()
			log.Printf("failed to submit task %s: %v", taskID, err)
			return false
		}
		m.job = job
		now := time.Now()
		m.task.StartedAt = &now
		m.task.Status = task.StatusRunning
		m.ec.MarkStarted()
		info := c.snapshotLocked(m)
		c.deliverLocked(m, func(l event.Listener) { l.OnTaskStarted(info) })
		return true

	case task.StatusPaused:
		m.ec.Resume()
		m.task.Status = task.StatusRunning
		info := c.snapshotLocked(m)
		c.deliverLocked(m, func(l event.Listener) { l.OnTaskResumed(info) })
		return true

	default:
		c.mu.Unlock()
		return false
	}
}

// PauseTask closes the task's gate. Only running tasks can be paused.
func (c *Controller) PauseTask(taskID string) bool {
	c.mu.Lock()
	m, ok := c.tasks[taskID]
	if !ok || m.task.Status != task.StatusRunning {
		c.mu.Unlock()
		return false
	}

	m.ec.Pause()
	m.task.Status = task.StatusPaused
	info := c.snapshotLocked(m)
	c.deliverLocked(m, func(l event.Listener) { l.OnTaskPaused(info) })
	return true
}

// ResumeTask reopens the gate of a paused task.
func (c *Controller) ResumeTask(taskID string) bool {
	c.mu.Lock()
	m, ok := c.tasks[taskID]
	if !ok || m.task.Status != task.StatusPaused {
		c.mu.Unlock()
		return false
	}

	m.ec.Resume()
	m.task.Status = task.StatusRunning
	info := c.snapshotLocked(m)
	c.deliverLocked(m, func(l event.Listener) { l.OnTaskResumed(info) })
	return true
}

// StopTask sets the stop flag, cancels not-yet-started pool work and marks
// the task stopped. Returns false for unknown ids and terminal tasks.
// Running work observes the stop at its next control-point check.
func (c *Controller) StopTask(taskID string) bool {
	c.mu.Lock()
	m, ok := c.tasks[taskID]
	if !ok || m.task.Status.IsTerminal() {
		c.mu.Unlock()
		return false
	}

	m.ec.Stop()
	if m.job != nil {
		m.job.Cancel()
	}
	m.task.Status = task.StatusStopped
	now := time.Now()
	m.task.CompletedAt = &now
	c.checker.Unregister(taskID)

	info := c.snapshotLocked(m)
	c.deliverLocked(m, func(l event.Listener) { l.OnTaskStopped(info) })
	return true
}

// GetTaskInfo returns a consistent snapshot of the task. It never blocks on
// work completion.
func (c *Controller) GetTaskInfo(taskID string) (task.Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.tasks[taskID]
	if !ok {
		return task.Info{}, false
	}
	return c.snapshotLocked(m), true
}

// ListTasks returns snapshots of all known tasks ordered by creation time.
func (c *Controller) ListTasks() []task.Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]task.Info, 0, len(c.tasks))
	for _, m := range c.tasks {
		infos = append(infos, c.snapshotLocked(m))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// AddListener registers l for lifecycle notifications. Adding the same
// listener twice has no additional effect.
func (c *Controller) AddListener(l event.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.listeners {
		if existing == l {
			return
		}
	}
	c.listeners = append(c.listeners, l)
}

// RemoveListener unregisters l. Removing an absent listener is a no-op.
func (c *Controller) RemoveListener(l event.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.listeners {
		if existing == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// run executes the work item on a pool worker, outside the registry lock.
func (c *Controller) run(taskID string) {
	c.mu.Lock()
	m, ok := c.tasks[taskID]
	if !ok || m.task.Status.IsTerminal() {
		c.mu.Unlock()
		return
	}
	ec := m.ec
	work := m.work
	c.mu.Unlock()

	result, err := func() (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("work item panicked: %v", r)
			}
		}()
		return work(ec)
	}()

	c.finish(taskID, result, err)
}

// finish records the terminal outcome of a work item. A task the controller
// already stopped keeps its stopped state and fires no further events.
func (c *Controller) finish(taskID string, result any, err error) {
	c.mu.Lock()
	m, ok := c.tasks[taskID]
	if !ok || m.task.Status.IsTerminal() {
		c.mu.Unlock()
		return
	}

	now := time.Now()
	m.task.CompletedAt = &now
	m.ec.MarkFinished()
	c.checker.Unregister(taskID)

	switch {
	case err == nil:
		m.task.Status = task.StatusCompleted
		m.task.Result = result
		m.ec.ForceComplete()
		info := c.snapshotLocked(m)
		c.deliverLocked(m, func(l event.Listener) { l.OnTaskCompleted(info) })

	case errors.Is(err, task.ErrAborted):
		m.ec.Stop()
		m.task.Status = task.StatusStopped
		info := c.snapshotLocked(m)
		c.deliverLocked(m, func(l event.Listener) { l.OnTaskStopped(info) })

	default:
		m.task.Status = task.StatusFailed
		m.task.Error = err.Error()
		info := c.snapshotLocked(m)
		c.deliverLocked(m, func(l event.Listener) { l.OnTaskFailed(info, err) })
	}
}

// onProgress fans a progress update out to listeners.
func (c *Controller) onProgress(taskID string) {
	c.mu.Lock()
	m, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return
	}

	info := c.snapshotLocked(m)
	c.deliverLocked(m, func(l event.Listener) { l.OnTaskProgress(info) })
}

// snapshotLocked builds an Info copy. Callers must hold c.mu.
func (c *Controller) snapshotLocked(m *managed) task.Info {
	p := m.ec.Progress()
	info := task.Info{
		ID:          m.task.ID,
		Name:        m.task.Name,
		Status:      m.task.Status,
		CreatedAt:   m.task.CreatedAt,
		Progress:    p.Percent(),
		CurrentStep: p.CurrentStep,
		ActiveTime:  m.ec.ActiveDuration(),
		PausedTime:  m.ec.PausedDuration(),
		Metadata:    maps.Clone(m.task.Metadata),
		Error:       m.task.Error,
		Result:      m.task.Result,
	}
	if m.task.StartedAt != nil {
		started := *m.task.StartedAt
		info.StartedAt = &started
	}
	if m.task.CompletedAt != nil {
		completed := *m.task.CompletedAt
		info.CompletedAt = &completed
	}
	return info
}

// deliverLocked fans one event out to a point-in-time copy of the listener
// list. Callers must hold c.mu; the sequence number is claimed under it and
// the lock is released before any listener runs, so a slow listener never
// blocks control operations on other tasks. Delivery waits for all earlier
// events of the same task, preserving per-task order.
func (c *Controller) deliverLocked(m *managed, deliver func(event.Listener)) {
	listeners := make([]event.Listener, len(c.listeners))
	copy(listeners, c.listeners)
	seq := m.nextSeq
	m.nextSeq++
	c.mu.Unlock()

	m.notifyMu.Lock()
	for m.doneSeq != seq {
		m.notifyCond.Wait()
	}
	m.notifyMu.Unlock()

	for _, l := range listeners {
		safeDeliver(l, deliver)
	}

	m.notifyMu.Lock()
	m.doneSeq++
	m.notifyCond.Broadcast()
	m.notifyMu.Unlock()
}

func safeDeliver(l event.Listener, deliver func(event.Listener)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event listener panicked: %v", r)
		}
	}()
	deliver(l)
}

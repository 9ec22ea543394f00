// Package event defines the lifecycle notification contract and the
// observer implementations that ship with the controller. Listeners hold no
// ownership over tasks; they only receive point-in-time snapshots.
package event

import (
	"time"

	"github.com/pricegrid/taskcore/internal/task"
)

type Type string

const (
	TypeCreated   Type = "created"
	TypeStarted   Type = "started"
	TypePaused    Type = "paused"
	TypeResumed   Type = "resumed"
	TypeStopped   Type = "stopped"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
	TypeProgress  Type = "progress"
)

// Listener receives lifecycle notifications. Implementations must not block
// for long: delivery happens on the thread that performed the transition.
type Listener interface {
	OnTaskCreated(info task.Info)
	OnTaskStarted(info task.Info)
	OnTaskPaused(info task.Info)
	OnTaskResumed(info task.Info)
	OnTaskStopped(info task.Info)
	OnTaskCompleted(info task.Info)
	OnTaskFailed(info task.Info, err error)
	OnTaskProgress(info task.Info)
}

// NoopListener implements Listener with empty methods so observers can embed
// it and override only the events they care about.
type NoopListener struct{}

func (NoopListener) OnTaskCreated(task.Info)       {}
func (NoopListener) OnTaskStarted(task.Info)       {}
func (NoopListener) OnTaskPaused(task.Info)        {}
func (NoopListener) OnTaskResumed(task.Info)       {}
func (NoopListener) OnTaskStopped(task.Info)       {}
func (NoopListener) OnTaskCompleted(task.Info)     {}
func (NoopListener) OnTaskFailed(task.Info, error) {}
func (NoopListener) OnTaskProgress(task.Info)      {}

// Event is the wire envelope used by the Redis and WebSocket transports.
type Event struct {
	Type      Type      `json:"type"`
	Task      task.Info `json:"task"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds the envelope for a lifecycle notification.
func NewEvent(t Type, info task.Info, err error) Event {
	e := Event{
		Type:      t,
		Task:      info,
		Timestamp: time.Now(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

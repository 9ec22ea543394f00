// Package task defines the core task domain model shared by the controller,
// execution contexts and event listeners. It contains status and transition
// definitions, progress bookkeeping and snapshot types.
package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusPaused    TaskStatus = "paused"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusStopped   TaskStatus = "stopped"
)

// ErrAborted marks work that returned early after observing a stop request.
// The controller records such tasks as stopped rather than failed.
var ErrAborted = errors.New("task aborted")

// IsTerminal reports whether s is a final state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition. Any combination not listed here is invalid.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusStopped
	case StatusRunning:
		return next == StatusPaused || next == StatusCompleted ||
			next == StatusFailed || next == StatusStopped
	case StatusPaused:
		return next == StatusRunning || next == StatusStopped
	default:
		return false
	}
}

type Task struct {
	ID          string
	Name        string
	Status      TaskStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Metadata    map[string]any
	Error       string
	Result      any
}

func NewTask(name string) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// Info is a point-in-time snapshot of a task handed to queries and event
// listeners. It never aliases controller-owned state.
type Info struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Progress    float64        `json:"progress"`
	CurrentStep string         `json:"current_step,omitempty"`
	ActiveTime  time.Duration  `json:"active_time"`
	PausedTime  time.Duration  `json:"paused_time"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
	Result      any            `json:"result,omitempty"`
}

// Progress tracks fine-grained advancement of a running work item.
type Progress struct {
	Percentage     float64       `json:"percentage"`
	CurrentStep    string        `json:"current_step,omitempty"`
	StepStartTime  time.Time     `json:"step_start_time"`
	StepDuration   time.Duration `json:"step_duration,omitempty"`
	ProcessedItems int           `json:"processed_items"`
	TotalItems     int           `json:"total_items"`
	CompletedSteps int           `json:"completed_steps"`
	TotalSteps     int           `json:"total_steps"`
}

// Percent derives the effective completion percentage. Item counts win over
// step counts, step counts win over the explicitly reported percentage.
func (p Progress) Percent() float64 {
	if p.TotalItems > 0 {
		return float64(p.ProcessedItems) / float64(p.TotalItems) * 100
	}
	if p.TotalSteps > 0 {
		return float64(p.CompletedSteps) / float64(p.TotalSteps) * 100
	}
	return p.Percentage
}

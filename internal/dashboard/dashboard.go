// Package dashboard implements the web-based monitoring interface over the
// controller's task snapshots.
package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pricegrid/taskcore/internal/httputil"
	"github.com/pricegrid/taskcore/internal/task"
)

// TaskLister is the slice of the controller the dashboard consumes.
type TaskLister interface {
	ListTasks() []task.Info
}

type Dashboard struct {
	tasks TaskLister
}

type Stats struct {
	TotalTasks     int            `json:"total_tasks"`
	PendingTasks   int            `json:"pending_tasks"`
	RunningTasks   int            `json:"running_tasks"`
	PausedTasks    int            `json:"paused_tasks"`
	CompletedTasks int            `json:"completed_tasks"`
	FailedTasks    int            `json:"failed_tasks"`
	StoppedTasks   int            `json:"stopped_tasks"`
	TasksByName    map[string]int `json:"tasks_by_name"`
	AverageActive  string         `json:"average_active_time"`
	LastUpdated    time.Time      `json:"last_updated"`
}

type TaskHistory struct {
	TaskID      string          `json:"task_id"`
	Name        string          `json:"name"`
	Status      task.TaskStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	ActiveTime  string          `json:"active_time"`
	PausedTime  string          `json:"paused_time"`
}

func NewDashboard(tasks TaskLister) *Dashboard {
	return &Dashboard{tasks: tasks}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	tasks := d.tasks.ListTasks()

	stats := Stats{
		TotalTasks:  len(tasks),
		TasksByName: make(map[string]int),
		LastUpdated: time.Now(),
	}

	var totalActive time.Duration
	activeCount := 0

	for _, t := range tasks {
		switch t.Status {
		case task.StatusPending:
			stats.PendingTasks++
		case task.StatusRunning:
			stats.RunningTasks++
		case task.StatusPaused:
			stats.PausedTasks++
		case task.StatusCompleted:
			stats.CompletedTasks++
		case task.StatusFailed:
			stats.FailedTasks++
		case task.StatusStopped:
			stats.StoppedTasks++
		}

		stats.TasksByName[t.Name]++

		if t.Status.IsTerminal() {
			totalActive += t.ActiveTime
			activeCount++
		}
	}

	if activeCount > 0 {
		avg := totalActive / time.Duration(activeCount)
		stats.AverageActive = avg.Round(time.Millisecond).String()
	} else {
		stats.AverageActive = "N/A"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		httputil.WriteJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

func (d *Dashboard) GetRecentTasks(w http.ResponseWriter, r *http.Request) {
	tasks := d.tasks.ListTasks()

	cutoff := time.Now().Add(-24 * time.Hour)
	history := []TaskHistory{}

	for _, t := range tasks {
		if t.CompletedAt == nil {
			continue
		}
		if t.CompletedAt.Before(cutoff) {
			continue
		}

		history = append(history, TaskHistory{
			TaskID:      t.ID,
			Name:        t.Name,
			Status:      t.Status,
			CreatedAt:   t.CreatedAt,
			CompletedAt: t.CompletedAt,
			ActiveTime:  t.ActiveTime.Round(time.Millisecond).String(),
			PausedTime:  t.PausedTime.Round(time.Millisecond).String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(history); err != nil {
		httputil.WriteJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

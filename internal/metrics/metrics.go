// Package metrics provides Prometheus metrics for monitoring the task
// control core.
package metrics

import (
	"time"

	"github.com/pricegrid/taskcore/internal/event"
	"github.com/pricegrid/taskcore/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_tasks_created_total",
			Help: "Total number of tasks created",
		},
		[]string{"name"},
	)
	TasksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_tasks_started_total",
			Help: "Total number of tasks started",
		},
		[]string{"name"},
	)
	TasksPaused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_tasks_paused_total",
			Help: "Total number of pause transitions",
		},
		[]string{"name"},
	)
	TasksResumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_tasks_resumed_total",
			Help: "Total number of resume transitions",
		},
		[]string{"name"},
	)
	TasksStopped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_tasks_stopped_total",
			Help: "Total number of tasks stopped before completion",
		},
		[]string{"name"},
	)
	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_tasks_completed_total",
			Help: "Total number of tasks completed successfully",
		},
		[]string{"name"},
	)
	TasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_tasks_failed_total",
			Help: "Total number of tasks that failed",
		},
		[]string{"name"},
	)
	TasksByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskcore_tasks_by_status",
			Help: "Current number of tasks by status",
		},
		[]string{"status"},
	)
	TaskActiveTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskcore_task_active_seconds",
			Help:    "Active execution time of terminal tasks, pauses excluded",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)
	TaskPausedTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskcore_task_paused_seconds",
			Help:    "Total time terminal tasks spent paused",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"status"},
	)
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskcore_workers_active",
			Help: "Size of the worker pool",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func UpdateTaskGauges(tasksByStatus map[task.TaskStatus]int) {
	TasksByStatus.Reset()
	for status, count := range tasksByStatus {
		TasksByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
}

func UpdateActiveWorkers(count int) {
	WorkersActive.Set(float64(count))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Listener feeds the lifecycle counters and histograms from controller
// events.
type Listener struct {
	event.NoopListener
}

func NewListener() *Listener {
	return &Listener{}
}

func (Listener) OnTaskCreated(info task.Info) {
	TasksCreated.WithLabelValues(info.Name).Inc()
}

func (Listener) OnTaskStarted(info task.Info) {
	TasksStarted.WithLabelValues(info.Name).Inc()
}

func (Listener) OnTaskPaused(info task.Info) {
	TasksPaused.WithLabelValues(info.Name).Inc()
}

func (Listener) OnTaskResumed(info task.Info) {
	TasksResumed.WithLabelValues(info.Name).Inc()
}

func (Listener) OnTaskStopped(info task.Info) {
	TasksStopped.WithLabelValues(info.Name).Inc()
	observeTerminal(info)
}

func (Listener) OnTaskCompleted(info task.Info) {
	TasksCompleted.WithLabelValues(info.Name).Inc()
	observeTerminal(info)
}

func (Listener) OnTaskFailed(info task.Info, _ error) {
	TasksFailed.WithLabelValues(info.Name).Inc()
	observeTerminal(info)
}

func observeTerminal(info task.Info) {
	status := string(info.Status)
	TaskActiveTime.WithLabelValues(status).Observe(info.ActiveTime.Seconds())
	TaskPausedTime.WithLabelValues(status).Observe(info.PausedTime.Seconds())
}

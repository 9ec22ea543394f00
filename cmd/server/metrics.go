package main

import (
	"time"

	"github.com/pricegrid/taskcore/internal/controller"
	"github.com/pricegrid/taskcore/internal/metrics"
	"github.com/pricegrid/taskcore/internal/task"
)

func startMetricsCollector(ctrl *controller.Controller) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		updateTaskMetrics(ctrl)
	}
}

func updateTaskMetrics(ctrl *controller.Controller) {
	tasksByStatus := make(map[task.TaskStatus]int)
	for _, info := range ctrl.ListTasks() {
		tasksByStatus[info.Status]++
	}

	metrics.UpdateTaskGauges(tasksByStatus)
}

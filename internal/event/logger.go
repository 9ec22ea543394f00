package event

import (
	"log"

	"github.com/pricegrid/taskcore/internal/task"
)

// LogListener prints lifecycle transitions to the standard logger.
type LogListener struct{}

func NewLogListener() *LogListener {
	return &LogListener{}
}

func (l *LogListener) OnTaskCreated(info task.Info) {
	log.Printf("Task %s (%s) created", info.ID, info.Name)
}

func (l *LogListener) OnTaskStarted(info task.Info) {
	log.Printf("Task %s (%s) started", info.ID, info.Name)
}

func (l *LogListener) OnTaskPaused(info task.Info) {
	log.Printf("Task %s (%s) paused at %.1f%%", info.ID, info.Name, info.Progress)
}

func (l *LogListener) OnTaskResumed(info task.Info) {
	log.Printf("Task %s (%s) resumed", info.ID, info.Name)
}

func (l *LogListener) OnTaskStopped(info task.Info) {
	log.Printf("Task %s (%s) stopped at %.1f%%", info.ID, info.Name, info.Progress)
}

func (l *LogListener) OnTaskCompleted(info task.Info) {
	log.Printf("Task %s (%s) completed", info.ID, info.Name)
}

func (l *LogListener) OnTaskFailed(info task.Info, err error) {
	log.Printf("Task %s (%s) failed: %v", info.ID, info.Name, err)
}

func (l *LogListener) OnTaskProgress(info task.Info) {
	log.Printf("Task %s (%s) progress %.1f%% step=%s", info.ID, info.Name, info.Progress, info.CurrentStep)
}

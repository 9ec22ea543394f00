// Package history provides an append-only PostgreSQL audit log of task
// lifecycle transitions. It is a pure observer: entries are written as events
// arrive and tasks are never restored from the log.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/pricegrid/taskcore/internal/event"
	"github.com/pricegrid/taskcore/internal/task"
)

const recordTimeout = 5 * time.Second

// Entry is one recorded lifecycle transition.
type Entry struct {
	TaskID     string    `json:"task_id"`
	Name       string    `json:"name"`
	Event      string    `json:"event"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Recorder persists lifecycle entries.
type Recorder interface {
	RecordEvent(ctx context.Context, e Entry) error
	RecentEvents(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(connectionString string) (*PostgresRecorder, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRecorder{db: db}, nil
}

func (r *PostgresRecorder) RecordEvent(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO task_events (
			task_id, name, event, status, progress, error, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		e.TaskID,
		e.Name,
		e.Event,
		e.Status,
		e.Progress,
		e.Error,
		e.OccurredAt,
	)

	return err
}

func (r *PostgresRecorder) RecentEvents(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT task_id, name, event, status, progress, error, occurred_at
		FROM task_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errMsg sql.NullString
		if err := rows.Scan(&e.TaskID, &e.Name, &e.Event, &e.Status, &e.Progress, &errMsg, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Error = errMsg.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}

// Listener adapts a Recorder to the lifecycle notification contract.
// Progress events are not recorded; they would flood the log.
type Listener struct {
	event.NoopListener

	recorder Recorder
}

func NewListener(recorder Recorder) *Listener {
	return &Listener{recorder: recorder}
}

func (l *Listener) record(eventType event.Type, info task.Info, err error) {
	entry := Entry{
		TaskID:     info.ID,
		Name:       info.Name,
		Event:      string(eventType),
		Status:     string(info.Status),
		Progress:   info.Progress,
		OccurredAt: time.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if recordErr := l.recorder.RecordEvent(ctx, entry); recordErr != nil {
		log.Printf("failed to record %s event for task %s: %v", eventType, info.ID, recordErr)
	}
}

func (l *Listener) OnTaskCreated(info task.Info)   { l.record(event.TypeCreated, info, nil) }
func (l *Listener) OnTaskStarted(info task.Info)   { l.record(event.TypeStarted, info, nil) }
func (l *Listener) OnTaskPaused(info task.Info)    { l.record(event.TypePaused, info, nil) }
func (l *Listener) OnTaskResumed(info task.Info)   { l.record(event.TypeResumed, info, nil) }
func (l *Listener) OnTaskStopped(info task.Info)   { l.record(event.TypeStopped, info, nil) }
func (l *Listener) OnTaskCompleted(info task.Info) { l.record(event.TypeCompleted, info, nil) }

func (l *Listener) OnTaskFailed(info task.Info, err error) {
	l.record(event.TypeFailed, info, err)
}

// Package scheduler implements the scheduler façade (§4.8): it creates and
// persists cron job rows. The cron extension itself fires the job, which
// re-enters the emit path via the run_scheduled_task stored routine (§6.1).
package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/corebus/eventbus/internal/ids"
	"github.com/corebus/eventbus/internal/storage"
)

// ErrNilJobID is returned when the cron extension's schedule primitive
// returns a null job id; §4.8 treats this as fatal.
var ErrNilJobID = fmt.Errorf("cron extension returned a null job id")

// TaskDefinition is the input to ScheduleTask.
type TaskDefinition struct {
	Name           string
	CronExpression string
	EventType      string
	Payload        any
	Timezone       string
}

// Task is the hydrated record returned by ScheduleTask.
type Task struct {
	TaskID         uuid.UUID
	Namespace      string
	JobID          int64
	Name           string
	CronExpression string
	EventType      string
	Active         bool
}

// Facade creates, persists, and deactivates scheduled tasks for one
// namespace.
type Facade struct {
	gw        *storage.Gateway
	namespace string
}

// New returns a Facade scoped to namespace.
func New(gw *storage.Gateway, namespace string) *Facade {
	return &Facade{gw: gw, namespace: ids.Sanitize(namespace)}
}

// ScheduleTask implements §4.8: generate a task id, register the cron job,
// persist the task row, return the hydrated record.
func (f *Facade) ScheduleTask(ctx context.Context, def TaskDefinition) (Task, error) {
	taskID := uuid.New()
	jobName := fmt.Sprintf("%s_%s_%s", f.namespace, ids.Sanitize(def.Name), taskID.String())
	command := fmt.Sprintf("SELECT core.run_scheduled_task('%s')", taskID.String())

	jobID, err := f.scheduleCronJob(ctx, jobName, def.CronExpression, command)
	if err != nil {
		return Task{}, err
	}

	payload, err := json.Marshal(def.Payload)
	if err != nil {
		return Task{}, fmt.Errorf("marshal task payload: %w", err)
	}

	_, err = f.gw.Exec(ctx,
		`INSERT INTO core.scheduled_tasks
			(task_id, namespace, job_id, name, cron_expression, event_type, payload, timezone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
		taskID, f.namespace, jobID, def.Name, def.CronExpression, def.EventType, payload, def.Timezone,
	)
	if err != nil {
		return Task{}, fmt.Errorf("insert scheduled task row: %w", err)
	}

	return Task{
		TaskID:         taskID,
		Namespace:      f.namespace,
		JobID:          jobID,
		Name:           def.Name,
		CronExpression: def.CronExpression,
		EventType:      def.EventType,
		Active:         true,
	}, nil
}

// UnscheduleTask is the supplemented companion §9 recommends: it marks the
// task inactive and unschedules the cron job under one transaction.
func (f *Facade) UnscheduleTask(ctx context.Context, taskID uuid.UUID) error {
	return f.gw.WithTransaction(ctx, func(tx *sql.Tx) error {
		var jobID int64

		row := tx.QueryRowContext(ctx,
			`SELECT job_id FROM core.scheduled_tasks WHERE task_id = $1 AND namespace = $2 FOR UPDATE`,
			taskID, f.namespace,
		)
		if err := row.Scan(&jobID); err != nil {
			return fmt.Errorf("load scheduled task: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `SELECT cron.unschedule($1)`, jobID); err != nil {
			return fmt.Errorf("unschedule cron job %d: %w", jobID, err)
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE core.scheduled_tasks SET active = false, updated_at = now() WHERE task_id = $1`,
			taskID,
		)
		if err != nil {
			return fmt.Errorf("deactivate scheduled task: %w", err)
		}

		return nil
	})
}

func (f *Facade) scheduleCronJob(ctx context.Context, jobName, cronExpression, command string) (int64, error) {
	rows, err := f.gw.Query(ctx, `SELECT cron.schedule($1, $2, $3)`, jobName, cronExpression, command)
	if err != nil {
		return 0, fmt.Errorf("cron schedule %s: %w", jobName, err)
	}
	defer rows.Close()

	var jobID sql.NullInt64
	if rows.Next() {
		if scanErr := rows.Scan(&jobID); scanErr != nil {
			return 0, fmt.Errorf("scan cron job id: %w", scanErr)
		}
	}

	if err := rows.Err(); err != nil {
		return 0, err
	}

	if !jobID.Valid {
		return 0, ErrNilJobID
	}

	return jobID.Int64, nil
}

package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// PostgresStore keeps tasks in the outbox_task table
type PostgresStore struct {
	db  DBTX
	now func() time.Time
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Enqueue(ctx context.Context, task Task) (Task, error) {
	task = prepare(task, s.now().UTC())
	_, err := s.db.Exec(ctx, `INSERT INTO outbox_task (id, kind, payload, attempts, last_error, created_at, next_run_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		task.ID, task.Kind, []byte(task.Payload), task.Attempts, task.LastError, task.CreatedAt, task.NextRunAt)
	if err != nil {
		return Task{}, fmt.Errorf("failed to enqueue %s task: %w", task.Kind, err)
	}
	return task, nil
}

func (s *PostgresStore) Due(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT id, kind, payload, attempts, COALESCE(last_error, ''), created_at, next_run_at
		FROM outbox_task
		WHERE next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}

	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Task, error) {
		var t Task
		var payload []byte
		err := row.Scan(&t.ID, &t.Kind, &payload, &t.Attempts, &t.LastError, &t.CreatedAt, &t.NextRunAt)
		t.Payload = payload
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan due tasks: %w", err)
	}
	return tasks, nil
}

func (s *PostgresStore) Reschedule(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextRunAt time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE outbox_task SET attempts = $2, last_error = $3, next_run_at = $4 WHERE id = $1`,
		id, attempts, lastError, nextRunAt)
	if err != nil {
		return fmt.Errorf("failed to reschedule task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM outbox_task WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task kinds enqueued by the application service
const (
	KindCredentialAppend = "credential_append"
	KindApprovalEmail    = "approval_email"
	KindPurchaseEmail    = "purchase_email"
)

var ErrTaskNotFound = errors.New("outbox task not found")

// Task is a side effect that failed once and waits for another attempt
type Task struct {
	ID        uuid.UUID
	Kind      string
	Payload   json.RawMessage
	Attempts  int
	LastError string
	CreatedAt time.Time
	NextRunAt time.Time
}

// NewTask marshals payload into a task of the given kind
func NewTask(kind string, payload interface{}) (Task, error) {
	if kind == "" {
		return Task{}, fmt.Errorf("task kind is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return Task{Kind: kind, Payload: raw}, nil
}

// Decode unmarshals the task payload into v
func (t Task) Decode(v interface{}) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", t.Kind, err)
	}
	return nil
}

// Outbox accepts failed side effects for later retry
type Outbox interface {
	Enqueue(ctx context.Context, task Task) (Task, error)
}

// Store persists tasks for the dispatcher
type Store interface {
	Outbox
	// Due returns up to limit tasks whose NextRunAt is not after now, oldest first
	Due(ctx context.Context, now time.Time, limit int) ([]Task, error)
	// Reschedule records a failed attempt
	Reschedule(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextRunAt time.Time) error
	// Complete removes a task that succeeded or was abandoned
	Complete(ctx context.Context, id uuid.UUID) error
}

func prepare(task Task, now time.Time) Task {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.NextRunAt.IsZero() {
		task.NextRunAt = now
	}
	if task.Payload == nil {
		task.Payload = json.RawMessage("null")
	}
	return task
}

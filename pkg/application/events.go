package application

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSubmitted         EventType = "application.submitted"
	EventStatusChanged     EventType = "application.status_changed"
	EventPurchaseConfirmed EventType = "application.purchase_confirmed"
)

// Event describes a committed change to an application
type Event struct {
	ID            string                 `json:"id"`
	Type          EventType              `json:"type"`
	ApplicationID string                 `json:"applicationId"`
	NationalID    string                 `json:"nationalId"`
	Status        Status                 `json:"status"`
	OccurredAt    time.Time              `json:"occurredAt"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// EventPublisher delivers events to interested services; delivery is best-effort
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

func newEvent(t EventType, app *Application, at time.Time, data map[string]interface{}) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          t,
		ApplicationID: app.ApplicationID,
		NationalID:    app.NationalID,
		Status:        app.Status,
		OccurredAt:    at.UTC(),
		Data:          data,
	}
}

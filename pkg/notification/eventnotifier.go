package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used to publish records
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// EventNotifier publishes rendered notices to a Kafka topic so other
// services can audit or fan out what was sent.
type EventNotifier struct {
	producer Producer
	topic    string
	now      func() time.Time
}

type noticeEvent struct {
	Type       NoticeType             `json:"type"`
	To         string                 `json:"to"`
	Subject    string                 `json:"subject"`
	Text       string                 `json:"text,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

func NewEventNotifier(producer Producer, topic string) *EventNotifier {
	return &EventNotifier{producer: producer, topic: topic, now: time.Now}
}

func (e *EventNotifier) Send(ctx context.Context, noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	rendered, err := Render(notification, NoticeTemplate{Subject: template.Subject, Text: template.Text})
	if err != nil {
		return err
	}

	value, err := json.Marshal(noticeEvent{
		Type:       noticeType,
		To:         rendered.To,
		Subject:    rendered.Subject,
		Text:       rendered.Text,
		Data:       notification.Data,
		OccurredAt: e.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notice event: %w", err)
	}

	record := &kgo.Record{
		Topic: e.topic,
		Key:   []byte(rendered.To),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "notice-type", Value: []byte(noticeType)},
		},
	}
	if err := e.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish notice event: %w", err)
	}

	slog.Debug("Notice event published", "type", noticeType, "topic", e.topic)
	return nil
}

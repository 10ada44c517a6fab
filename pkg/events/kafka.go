package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/vlinder/social-grant/pkg/application"
)

// Producer is the subset of *kgo.Client used to publish records
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher publishes application events keyed by application ID,
// so all events of one application land on the same partition in order.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event application.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ApplicationID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	slog.Debug("Application event published", "type", event.Type, "applicationId", event.ApplicationID, "topic", p.topic)
	return nil
}

// NewClient creates a franz-go client for a comma separated broker list
func NewClient(brokers, clientID string) (*kgo.Client, error) {
	seeds := make([]string, 0)
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			seeds = append(seeds, b)
		}
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(seeds...),
		kgo.AllowAutoTopicCreation(),
	}
	if clientID != "" {
		opts = append(opts, kgo.ClientID(clientID))
	}
	return kgo.NewClient(opts...)
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/vlinder/social-grant/pkg/application"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		p.records = append(p.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestPublish(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewKafkaPublisher(producer, "grant-applications")

	event := application.Event{
		ID:            "evt-1",
		Type:          application.EventStatusChanged,
		ApplicationID: "SG-2025-000001",
		NationalID:    "8267411571",
		Status:        application.StatusApproved,
		OccurredAt:    time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "grant-applications", rec.Topic)
	assert.Equal(t, []byte("SG-2025-000001"), rec.Key)
	assert.Contains(t, rec.Headers, kgo.RecordHeader{Key: "event-type", Value: []byte("application.status_changed")})

	var decoded application.Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, event, decoded)
}

func TestPublishFailure(t *testing.T) {
	boom := errors.New("broker unavailable")
	pub := NewKafkaPublisher(&fakeProducer{err: boom}, "grant-applications")
	err := pub.Publish(context.Background(), application.Event{Type: application.EventSubmitted})
	assert.ErrorIs(t, err, boom)
}

func TestNewClientRequiresBrokers(t *testing.T) {
	_, err := NewClient(" , ", "social-grant")
	assert.Error(t, err)
}

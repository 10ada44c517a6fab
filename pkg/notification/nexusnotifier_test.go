package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

var testTemplate = NoticeTemplate{
	Subject: "Grant approved",
	Text:    "Dear {{.fullName}}",
	Html:    "<p>Dear {{.fullName}}</p>",
}

func TestNexusNotifierNotConfigured(t *testing.T) {
	for _, cfg := range []NexusConfig{
		{Enabled: false, Token: "secret"},
		{Enabled: true},
	} {
		n := NewNexusNotifier(cfg, nil)
		assert.False(t, n.Configured())
		err := n.Send(context.Background(), TestEmailNotice, NotificationData{To: "a@example.com"}, testTemplate)
		assert.ErrorIs(t, err, ErrNexusNotConfigured)
	}
}

func TestNexusNotifierSend(t *testing.T) {
	var got nexusRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewNexusNotifier(NexusConfig{Enabled: true, Token: "secret", URL: server.URL}, server.Client())
	err := n.Send(context.Background(), GrantApprovedNotice, NotificationData{
		To:   "asha@example.com",
		Data: map[string]interface{}{"fullName": "Asha Rao"},
	}, testTemplate)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, DefaultSender, got.From)
	assert.Equal(t, []string{"asha@example.com"}, got.To)
	assert.Equal(t, "Grant approved", got.Subject)
	assert.Equal(t, "Dear Asha Rao", got.Text)
	assert.Equal(t, "<p>Dear Asha Rao</p>", got.Html)
	assert.Equal(t, DefaultNexusDomain, got.Domain)
	_, err = uuid.Parse(got.TxnID)
	assert.NoError(t, err)
}

func TestNexusNotifierRejected(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"domain not verified"}`))
	}))
	defer server.Close()

	n := NewNexusNotifier(NexusConfig{Enabled: true, Token: "secret", URL: server.URL, RetryMax: 2}, server.Client())
	err := n.Send(context.Background(), TestEmailNotice, NotificationData{To: "a@example.com"}, testTemplate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "domain not verified")
	// 4xx is not retried
	assert.Equal(t, int32(1), calls.Load())
}

func TestNexusNotifierRequiresRecipient(t *testing.T) {
	n := NewNexusNotifier(NexusConfig{Enabled: true, Token: "secret"}, nil)
	err := n.Send(context.Background(), TestEmailNotice, NotificationData{}, testTemplate)
	assert.Error(t, err)
}

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

func TestEventNotifierPublishes(t *testing.T) {
	producer := &fakeProducer{}
	n := NewEventNotifier(producer, "grant-notices")
	n.now = func() time.Time { return time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC) }

	err := n.Send(context.Background(), GrantApprovedNotice, NotificationData{
		To:   "asha@example.com",
		Data: map[string]interface{}{"fullName": "Asha Rao"},
	}, testTemplate)
	require.NoError(t, err)

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "grant-notices", rec.Topic)
	assert.Equal(t, []byte("asha@example.com"), rec.Key)
	assert.Equal(t, []kgo.RecordHeader{{Key: "notice-type", Value: []byte("grant_approved")}}, rec.Headers)

	var event noticeEvent
	require.NoError(t, json.Unmarshal(rec.Value, &event))
	assert.Equal(t, GrantApprovedNotice, event.Type)
	assert.Equal(t, "Dear Asha Rao", event.Text)
	assert.Equal(t, "Grant approved", event.Subject)
}

func TestEventNotifierProduceFailure(t *testing.T) {
	producer := &fakeProducer{err: assert.AnError}
	n := NewEventNotifier(producer, "grant-notices")
	err := n.Send(context.Background(), TestEmailNotice, NotificationData{To: "a@example.com"}, testTemplate)
	assert.ErrorIs(t, err, assert.AnError)
}

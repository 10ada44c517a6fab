package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ApplicationSubmitted()
	m.ApplicationSubmitted()
	m.StatusUpdated("Approved")
	m.PurchaseConfirmed()
	m.ObserveSideEffectFailure("approval_email")
	m.ObserveUpstream("token", "ok", 120*time.Millisecond)
	m.ObserveUpstream("token", "error", time.Second)
	m.ObserveRateLimited("submit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ApplicationsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusUpdates.WithLabelValues("Approved")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StatusUpdates.WithLabelValues("Rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PurchasesConfirmed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SideEffectFailures.WithLabelValues("approval_email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("token", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("token", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("submit")))
}

func TestInstancesDoNotCollide(t *testing.T) {
	a := New()
	b := New()
	a.ApplicationSubmitted()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ApplicationsSubmitted))
}

func TestHandler(t *testing.T) {
	m := New()
	m.PurchaseConfirmed()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "social_grant_purchases_confirmed_total 1")
}

package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	buckets []string
}

func (o *recordingObserver) ObserveRateLimited(bucket string) {
	o.buckets = append(o.buckets, bucket)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func send(h http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":51234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewarePerIP(t *testing.T) {
	cfg := &Config{PerIPEnabled: true, PerIPCapacity: 2, PerIPRefillRate: 0.001, IncludeHeaders: true}
	observer := &recordingObserver{}
	m := NewMiddleware(cfg, WithObserver(observer))
	defer m.Stop()
	h := m.Handler(okHandler())

	first := send(h, http.MethodGet, "/api/applications/SG-2025-000001", "203.0.113.7")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit-IP"))
	assert.Equal(t, http.StatusOK, send(h, http.MethodGet, "/", "203.0.113.7").Code)

	rejected := send(h, http.MethodGet, "/", "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Equal(t, "60", rejected.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rejected.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "rate_limit_exceeded", body["error"])
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
	assert.Equal(t, BucketIP, body["type"])

	assert.Equal(t, http.StatusOK, send(h, http.MethodGet, "/", "198.51.100.1").Code)
	assert.Equal(t, []string{BucketIP}, observer.buckets)
}

func TestMiddlewareEndpointLimit(t *testing.T) {
	cfg := &Config{
		EndpointLimits: map[string]EndpointLimit{
			"POST /api/applications": {Capacity: 1, RefillRate: 0.001},
		},
	}
	m := NewMiddleware(cfg)
	defer m.Stop()
	h := m.Handler(okHandler())

	assert.Equal(t, http.StatusOK, send(h, http.MethodPost, "/api/applications", "203.0.113.7").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(h, http.MethodPost, "/api/applications", "203.0.113.7").Code)

	assert.Equal(t, http.StatusTooManyRequests, send(h, http.MethodPost, "/api/applications/", "203.0.113.7").Code)

	// other methods, paths and clients are unaffected
	assert.Equal(t, http.StatusOK, send(h, http.MethodGet, "/api/applications", "203.0.113.7").Code)
	assert.Equal(t, http.StatusOK, send(h, http.MethodPost, "/api/applications", "203.0.113.8").Code)
}

func TestMiddlewareGlobalLimit(t *testing.T) {
	m := NewMiddleware(&Config{GlobalEnabled: true, GlobalCapacity: 1, GlobalRefillRate: 0.001})
	defer m.Stop()
	h := m.Handler(okHandler())

	assert.Equal(t, http.StatusOK, send(h, http.MethodGet, "/", "203.0.113.7").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(h, http.MethodGet, "/", "198.51.100.1").Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:80", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:80", "198.51.100.4"},
		{"remote addr", nil, "192.0.2.1:4567", "192.0.2.1"},
		{"ipv6 remote", nil, "[2001:db8::1]:4567", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestPerMinute(t *testing.T) {
	l := PerMinute(30)
	assert.Equal(t, 30, l.Capacity)
	assert.InDelta(t, 0.5, l.RefillRate, 1e-9)
}

func TestDefaultConfigStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EndpointLimits["POST /fetchUserInfo"] = PerMinute(20)
	m := NewMiddleware(cfg)
	defer m.Stop()

	stats := m.GetStats()
	assert.Equal(t, 1000, stats[BucketGlobal].TotalCapacity)
	assert.Equal(t, 100, stats[BucketIP].TotalCapacity)
	assert.Equal(t, 20, stats["endpoint:POST /fetchUserInfo"].TotalCapacity)
}

package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"

	grantErrors "github.com/vlinder/social-grant/pkg/errors"
)

const (
	BucketGlobal   = "global"
	BucketIP       = "ip"
	BucketUser     = "user"
	BucketEndpoint = "endpoint"
)

// Config holds rate limiting configuration
type Config struct {
	GlobalEnabled    bool
	GlobalCapacity   int
	GlobalRefillRate float64

	PerIPEnabled    bool
	PerIPCapacity   int
	PerIPRefillRate float64

	// applies to requests carrying an admin bearer token
	PerUserEnabled    bool
	PerUserCapacity   int
	PerUserRefillRate float64

	// keyed by "METHOD /path", counted per client IP
	EndpointLimits map[string]EndpointLimit

	BucketTTL      time.Duration
	IncludeHeaders bool
	RetryAfter     time.Duration
}

type EndpointLimit struct {
	Capacity   int
	RefillRate float64
}

// PerMinute converts a requests-per-minute budget into an EndpointLimit
func PerMinute(n int) EndpointLimit {
	return EndpointLimit{Capacity: n, RefillRate: float64(n) / 60.0}
}

// DefaultConfig allows 1000 req/min globally, 100 req/min per IP and 200 req/min per admin.
// Endpoint limits are left to the caller.
func DefaultConfig() *Config {
	return &Config{
		GlobalEnabled:     true,
		GlobalCapacity:    1000,
		GlobalRefillRate:  1000.0 / 60.0,
		PerIPEnabled:      true,
		PerIPCapacity:     100,
		PerIPRefillRate:   100.0 / 60.0,
		PerUserEnabled:    true,
		PerUserCapacity:   200,
		PerUserRefillRate: 200.0 / 60.0,
		EndpointLimits:    make(map[string]EndpointLimit),
		BucketTTL:         time.Hour,
		IncludeHeaders:    true,
		RetryAfter:        time.Minute,
	}
}

// Observer is notified of every rejected request
type Observer interface {
	ObserveRateLimited(bucket string)
}

type Middleware struct {
	config           *Config
	observer         Observer
	globalLimiter    *RateLimiter
	ipLimiter        *RateLimiter
	userLimiter      *RateLimiter
	endpointLimiters map[string]*RateLimiter
}

type Option func(*Middleware)

func WithObserver(o Observer) Option {
	return func(m *Middleware) {
		m.observer = o
	}
}

func NewMiddleware(config *Config, opts ...Option) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Middleware{
		config:           config,
		endpointLimiters: make(map[string]*RateLimiter),
	}
	for _, opt := range opts {
		opt(m)
	}

	if config.GlobalEnabled {
		m.globalLimiter = NewRateLimiter(config.GlobalCapacity, config.GlobalRefillRate, config.BucketTTL)
	}
	if config.PerIPEnabled {
		m.ipLimiter = NewRateLimiter(config.PerIPCapacity, config.PerIPRefillRate, config.BucketTTL)
	}
	if config.PerUserEnabled {
		m.userLimiter = NewRateLimiter(config.PerUserCapacity, config.PerUserRefillRate, config.BucketTTL)
	}
	for endpoint, limit := range config.EndpointLimits {
		m.endpointLimiters[endpoint] = NewRateLimiter(limit.Capacity, limit.RefillRate, config.BucketTTL)
	}
	return m
}

// Handler applies the global, per-IP, per-user and endpoint limits in that order
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.globalLimiter != nil && !m.globalLimiter.Allow(BucketGlobal) {
			m.rateLimitExceeded(w, r, BucketGlobal)
			return
		}

		ip := getClientIP(r)
		if m.ipLimiter != nil && ip != "" && !m.ipLimiter.Allow(ip) {
			m.rateLimitExceeded(w, r, BucketIP)
			return
		}

		userID := getUserID(r)
		if m.userLimiter != nil && userID != "" && !m.userLimiter.Allow(userID) {
			m.rateLimitExceeded(w, r, BucketUser)
			return
		}

		endpointKey := r.Method + " " + endpointPath(r.URL.Path)
		if limiter, ok := m.endpointLimiters[endpointKey]; ok {
			if !limiter.Allow(ip + ":" + endpointKey) {
				m.rateLimitExceeded(w, r, BucketEndpoint)
				return
			}
		}

		if m.config.IncludeHeaders {
			if m.ipLimiter != nil && ip != "" {
				w.Header().Set("X-RateLimit-Limit-IP", strconv.Itoa(m.config.PerIPCapacity))
			}
			if m.userLimiter != nil && userID != "" {
				w.Header().Set("X-RateLimit-Limit-User", strconv.Itoa(m.config.PerUserCapacity))
			}
		}

		next.ServeHTTP(w, r)
	})
}

type exceededResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, limitType string) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"ip", getClientIP(r),
		"user", getUserID(r),
		"path", r.URL.Path,
		"method", r.Method,
	)
	if m.observer != nil {
		m.observer.ObserveRateLimited(limitType)
	}

	retryAfter := m.config.RetryAfter
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	seconds := strconv.Itoa(int(retryAfter.Seconds()))
	coded := grantErrors.RateLimitExceeded(seconds)

	w.Header().Set("Retry-After", seconds)
	render.Status(r, coded.HTTPStatusCode())
	render.JSON(w, r, exceededResponse{
		Message: "Too many requests. Please try again later.",
		Error:   "rate_limit_exceeded",
		Code:    string(coded.Code),
		Type:    limitType,
	})
}

// endpointPath drops a trailing slash so "/x/" and "/x" share a bucket
func endpointPath(p string) string {
	if len(p) > 1 {
		return strings.TrimSuffix(p, "/")
	}
	return p
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// getUserID reads the subject of a verified admin token, if any
func getUserID(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	return ""
}

func (m *Middleware) GetStats() map[string]Stats {
	stats := make(map[string]Stats)
	if m.globalLimiter != nil {
		stats[BucketGlobal] = m.globalLimiter.GetStats()
	}
	if m.ipLimiter != nil {
		stats[BucketIP] = m.ipLimiter.GetStats()
	}
	if m.userLimiter != nil {
		stats[BucketUser] = m.userLimiter.GetStats()
	}
	for endpoint, limiter := range m.endpointLimiters {
		stats["endpoint:"+endpoint] = limiter.GetStats()
	}
	return stats
}

// Reset refills the per-IP and per-user buckets for key
func (m *Middleware) Reset(key string) {
	if m.ipLimiter != nil {
		m.ipLimiter.Reset(key)
	}
	if m.userLimiter != nil {
		m.userLimiter.Reset(key)
	}
}

// Stop ends background eviction in every limiter
func (m *Middleware) Stop() {
	for _, l := range []*RateLimiter{m.globalLimiter, m.ipLimiter, m.userLimiter} {
		if l != nil {
			l.Stop()
		}
	}
	for _, l := range m.endpointLimiters {
		l.Stop()
	}
}

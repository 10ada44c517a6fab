package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	buckets  map[string]*bucket
	capacity int
	limit    rate.Limit
	ttl      time.Duration
	mu       sync.Mutex
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter allowing bursts of capacity and refillRate requests per second per key.
// With a ttl > 0 buckets idle for longer than ttl are evicted in the background until Stop is called.
func NewRateLimiter(capacity int, refillRate float64, ttl time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		capacity: capacity,
		limit:    rate.Limit(refillRate),
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if ttl > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

func (rl *RateLimiter) get(key string) (*rate.Limiter, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.capacity)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter, now
}

// Allow reports whether one more request for key fits in its bucket
func (rl *RateLimiter) Allow(key string) bool {
	limiter, now := rl.get(key)
	return limiter.AllowN(now, 1)
}

// Tokens returns the tokens currently available to key
func (rl *RateLimiter) Tokens(key string) float64 {
	limiter, now := rl.get(key)
	return limiter.TokensAt(now)
}

// Reset refills the bucket for key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.buckets[key]; ok {
		rl.buckets[key] = &bucket{limiter: rate.NewLimiter(rl.limit, rl.capacity), lastSeen: rl.now()}
	}
}

func (rl *RateLimiter) Remove(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Cleanup evicts buckets idle for longer than the ttl
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.ttl {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stop:
			return
		}
	}
}

// Stop ends background eviction
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

type Stats struct {
	ActiveBuckets int
	TotalCapacity int
	RefillRate    float64
}

func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return Stats{
		ActiveBuckets: len(rl.buckets),
		TotalCapacity: rl.capacity,
		RefillRate:    float64(rl.limit),
	}
}

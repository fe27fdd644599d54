// Package ratelimit provides a per-client token bucket used to shield the
// upstream model API from request floods.
package ratelimit

import (
	"sync"
	"time"

	"toolbridge/internal/config"
)

// Limiter implements a per-key token bucket rate limiter.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     float64
	burst   int
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// New creates a limiter with the given requests-per-second and burst size.
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 100
	}
	if burst <= 0 {
		burst = int(rps)
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rps:     rps,
		burst:   burst,
	}
}

// NewFromEnv reads RATE_LIMIT_RPS (default 100) and RATE_LIMIT_BURST (default
// same as rps).
func NewFromEnv() *Limiter {
	rps := float64(config.ParseIntEnv("RATE_LIMIT_RPS", 100))
	burst := config.ParseIntEnv("RATE_LIMIT_BURST", int(rps))
	return New(rps, burst)
}

// Allow reports whether a request from the given key may proceed, consuming
// one token when it does.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{
			tokens:    float64(l.burst) - 1,
			lastCheck: now,
		}
		return true
	}

	elapsed := now.Sub(b.lastCheck).Seconds()
	b.tokens += elapsed * l.rps
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastCheck = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Cleanup removes buckets idle longer than maxAge.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for key, b := range l.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

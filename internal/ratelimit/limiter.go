// Package ratelimit implements the per-session rate limiter of spec.md
// §4.6: a token bucket guarding how often one session may dispatch a
// message, grounded on the Java RateLimiter's capacity/refill scheme.
package ratelimit

import (
	"sync"
	"time"

	"github.com/victornm/quizboard/internal/metrics"
)

const (
	DefaultCapacity   = 10
	DefaultRefillRate = 5 // tokens added per RefillInterval
	DefaultInterval   = time.Second
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

type Config struct {
	Capacity       float64
	RefillRate     float64
	RefillInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Capacity:       DefaultCapacity,
		RefillRate:     DefaultRefillRate,
		RefillInterval: DefaultInterval,
	}
}

// Limiter holds one token bucket per session, allocated lazily on
// first use. Safe for concurrent use.
type Limiter struct {
	c Config

	mu      sync.Mutex
	buckets map[string]*bucket
}

func New(c Config) *Limiter {
	if c.Capacity <= 0 {
		c = DefaultConfig()
	}
	return &Limiter{c: c, buckets: make(map[string]*bucket)}
}

// Allow consumes one token for sessionID if available and reports
// whether the call may proceed. A session with no bucket yet is
// allocated a full bucket on first use. It fails open: if deciding
// panics, the call is allowed.
func (l *Limiter) Allow(sessionID string) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			allowed = true
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[sessionID]
	if !ok {
		b = &bucket{tokens: l.c.Capacity, lastRefill: time.Now()}
		l.buckets[sessionID] = b
	}

	l.refillLocked(b)

	if b.tokens < 1 {
		metrics.RecordRateLimitDecision(false)
		return false
	}
	b.tokens--
	metrics.RecordRateLimitDecision(true)
	return true
}

// Remaining reports the session's current token count, for
// diagnostics and tests.
func (l *Limiter) Remaining(sessionID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[sessionID]
	if !ok {
		return l.c.Capacity
	}
	l.refillLocked(b)
	return b.tokens
}

// Remove discards a session's bucket, for use by session cleanup.
func (l *Limiter) Remove(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, sessionID)
}

func (l *Limiter) refillLocked(b *bucket) {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}

	b.tokens += elapsed.Seconds() / l.c.RefillInterval.Seconds() * l.c.RefillRate
	if b.tokens > l.c.Capacity {
		b.tokens = l.c.Capacity
	}
	b.lastRefill = now
}

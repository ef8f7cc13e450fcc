package platform

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRPS   = 2
	defaultBurst = 4

	// limiterIdleTTL is how long an unused channel keeps its bucket.
	limiterIdleTTL = 10 * time.Minute
	// limiterCleanupPeriod bounds how often idle buckets are looked for.
	limiterCleanupPeriod = time.Minute
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// Limiter paces outgoing calls with one token bucket per key (channel id).
// Buckets idle longer than it takes them to refill are evicted; a fresh
// bucket is indistinguishable from a full one.
// A nil *Limiter never waits.
type Limiter struct {
	mu          sync.Mutex
	m           map[string]*limiterEntry
	rps         float64
	burst       int
	ttl         time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

// NewLimiter creates a Limiter. Non-positive values fall back to defaults.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = defaultRPS
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	ttl := limiterIdleTTL
	if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > ttl {
		ttl = refill
	}
	return &Limiter{
		m:           make(map[string]*limiterEntry),
		rps:         rps,
		burst:       burst,
		ttl:         ttl,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// get returns the bucket for key, creating it on first use, and evicts
// idle buckets at most once per cleanup period.
func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) >= limiterCleanupPeriod {
		l.cleanup(now)
	}
	if e, ok := l.m[key]; ok {
		e.lastSeen = now
		return e.l
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.m[key] = &limiterEntry{l: lim, lastSeen: now}
	return lim
}

// cleanup removes buckets not used within ttl. Callers hold mu.
func (l *Limiter) cleanup(now time.Time) {
	l.lastCleanup = now
	cutoff := now.Add(-l.ttl)
	for k, e := range l.m {
		if e.lastSeen.Before(cutoff) {
			delete(l.m, k)
		}
	}
}

// Wait blocks until a call for key may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l == nil {
		return ctx.Err()
	}
	return l.get(key).Wait(ctx)
}

// Allow reports whether a call for key may proceed now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.get(key).Allow()
}

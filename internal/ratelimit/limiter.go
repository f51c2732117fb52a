// Package ratelimit throttles expensive requests per client with token
// buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures a Limiter. A non-positive RequestsPerSecond disables
// limiting.
type Config struct {
	// RequestsPerSecond is the sustained refill rate of each bucket.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst is the bucket capacity. Zero means twice the rate, at least 1.
	Burst int `yaml:"burst"`
}

// Enabled reports whether c limits anything.
func (c Config) Enabled() bool {
	return c.RequestsPerSecond > 0
}

func (c Config) burst() float64 {
	if c.Burst > 0 {
		return float64(c.Burst)
	}
	if b := c.RequestsPerSecond * 2; b >= 1 {
		return b
	}
	return 1
}

// bucket is a token bucket. Callers hold the limiter lock.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

func (b *bucket) refill(now time.Time, rate, max float64) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * rate
		if b.tokens > max {
			b.tokens = max
		}
	}
	b.lastRefill = now
}

// Limiter keeps one bucket per key, typically a client address.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
	enabled bool
	maxKeys int
	now     func() time.Time
}

// NewLimiter creates a limiter for cfg.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    cfg.RequestsPerSecond,
		burst:   cfg.burst(),
		enabled: cfg.Enabled(),
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Allow consumes a token for key. When none is left it returns false and
// how long until one will be.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l == nil || !l.enabled {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.prune(now)
		}
		b = &bucket{tokens: l.burst, lastRefill: now}
		l.buckets[key] = b
	}
	b.refill(now, l.rate, l.burst)

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait
}

// Reset forgets the bucket for key.
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// prune drops buckets that have refilled to near capacity, which belong
// to idle clients.
func (l *Limiter) prune(now time.Time) {
	for key, b := range l.buckets {
		b.refill(now, l.rate, l.burst)
		if b.tokens >= l.burst*0.9 {
			delete(l.buckets, key)
		}
	}
}

// Package ratelimit implements the per-connection token bucket from
// the concurrency model: capacity = max requests, refill rate =
// capacity / window, with the refill computed on each check from the
// clock rather than a background ticker. Rate limiting reads the wall
// clock deliberately — it sits outside the deterministic core, which
// never observes time.
package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrLimited is returned by Limiter.Check when a connection has
// exhausted its bucket for the current window.
var ErrLimited = errors.New("ratelimit: request rate exceeded")

// Config sizes every bucket a Limiter hands out.
type Config struct {
	// MaxRequests is the bucket capacity: the largest burst one
	// connection may issue before refill pacing takes over.
	MaxRequests int
	// Window is the period over which MaxRequests refill; the refill
	// rate is MaxRequests / Window.
	Window time.Duration
}

// Valid reports whether the config describes a usable bucket.
func (c Config) Valid() bool {
	return c.MaxRequests > 0 && c.Window > 0
}

// Bucket is a single token bucket. Allow is O(1): it tops the bucket
// up from the elapsed time since the last check, then takes one token
// if one is available.
type Bucket struct {
	mu     sync.Mutex
	clk    clock.Clock
	tokens float64
	last   time.Time

	capacity float64
	perSec   float64
}

// NewBucket returns a full bucket sized by cfg. clk may be nil, in
// which case the wall clock is used.
func NewBucket(cfg Config, clk clock.Clock) *Bucket {
	if clk == nil {
		clk = clock.New()
	}
	return &Bucket{
		clk:      clk,
		tokens:   float64(cfg.MaxRequests),
		last:     clk.Now(),
		capacity: float64(cfg.MaxRequests),
		perSec:   float64(cfg.MaxRequests) / cfg.Window.Seconds(),
	}
}

// Allow takes one token if available, refilling from elapsed time
// first. It never blocks.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clk.Now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.perSec
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Limiter hands out one Bucket per connection key, creating buckets on
// first use. Keys are opaque; the server boundary uses a connection
// identifier, the simulation harness uses a tenant string.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	clk     clock.Clock
	buckets map[string]*Bucket
}

// NewLimiter returns a Limiter sized by cfg. clk may be nil for the
// wall clock.
func NewLimiter(cfg Config, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{cfg: cfg, clk: clk, buckets: make(map[string]*Bucket)}
}

// Check takes one token from key's bucket, returning ErrLimited when
// the bucket is empty.
func (l *Limiter) Check(key string) error {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = NewBucket(l.cfg, l.clk)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	if !b.Allow() {
		return ErrLimited
	}
	return nil
}

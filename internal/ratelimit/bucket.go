// Package ratelimit implements the token bucket behind a publisher's
// rate_limit_hz option. State is process-local; nothing here touches
// shared memory.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Bucket refills at rate tokens per second with a burst of
// max(1, rate/10). Sends exceeding the rate are rejected, not queued,
// so latency bounds hold.
type Bucket struct {
	mu       sync.Mutex
	rate     float64
	burst    float64
	tokens   float64
	last     time.Time
	rejected uint64

	now func() time.Time // test hook
}

// NewBucket returns a full bucket for rateHz tokens per second, or nil
// when rateHz is zero (unlimited).
func NewBucket(rateHz uint64) *Bucket {
	if rateHz == 0 {
		return nil
	}
	burst := float64(rateHz) / 10
	if burst < 1 {
		burst = 1
	}
	return &Bucket{
		rate:   float64(rateHz),
		burst:  burst,
		tokens: burst,
		now:    time.Now,
	}
}

// Allow consumes one token when available. A nil bucket always allows.
func (b *Bucket) Allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if !b.last.IsZero() {
		b.tokens += now.Sub(b.last).Seconds() * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
	}
	b.last = now
	if b.tokens < 1 {
		atomic.AddUint64(&b.rejected, 1)
		return false
	}
	b.tokens--
	return true
}

// Rejected returns the lifetime count of throttled sends.
func (b *Bucket) Rejected() uint64 {
	if b == nil {
		return 0
	}
	return atomic.LoadUint64(&b.rejected)
}

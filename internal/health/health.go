// Package health collects per-handle operation, error and rate
// counters. Everything is atomic; a telemetry poll never blocks a
// concurrent send or receive.
package health

import (
	"sync/atomic"
	"time"
)

// rate window length in nanoseconds (trailing one second).
const windowNs = int64(time.Second)

// Counters is embedded in every publisher and subscriber handle.
type Counters struct {
	ops    uint64
	errs   uint64
	lastOp int64

	windowStart int64
	windowOps   uint64
	prevRate    uint64
}

// Thresholds derive the healthy flag from a snapshot.
type Thresholds struct {
	MaxLag    uint64
	MaxErrors uint64
}

// DefaultThresholds mirror the original heuristic: any error is
// unhealthy, lag past 100 slots is unhealthy.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxLag: 100, MaxErrors: 0}
}

// Snapshot is a point-in-time view of one handle's counters.
type Snapshot struct {
	Operations uint64
	Errors     uint64
	RateHz     uint64
	Lag        uint64
	LastOp     time.Time
	Healthy    bool
}

// RecordOp counts one successful operation and feeds the rate window.
func (c *Counters) RecordOp() {
	atomic.AddUint64(&c.ops, 1)
	now := time.Now().UnixNano()
	atomic.StoreInt64(&c.lastOp, now)

	start := atomic.LoadInt64(&c.windowStart)
	if now-start >= windowNs {
		if atomic.CompareAndSwapInt64(&c.windowStart, start, now) {
			// Loser of the race keeps counting into the fresh window.
			done := atomic.SwapUint64(&c.windowOps, 0)
			if start != 0 {
				atomic.StoreUint64(&c.prevRate, scaleRate(done, now-start))
			}
		}
	}
	atomic.AddUint64(&c.windowOps, 1)
}

// RecordError counts a rejection, skip or overrun.
func (c *Counters) RecordError() {
	atomic.AddUint64(&c.errs, 1)
}

// Operations returns the lifetime operation count.
func (c *Counters) Operations() uint64 { return atomic.LoadUint64(&c.ops) }

// Errors returns the lifetime error count.
func (c *Counters) Errors() uint64 { return atomic.LoadUint64(&c.errs) }

// Rate returns the operations-per-second over the trailing window.
func (c *Counters) Rate() uint64 {
	now := time.Now().UnixNano()
	start := atomic.LoadInt64(&c.windowStart)
	if start == 0 {
		return 0
	}
	if now-start >= 2*windowNs {
		// Stale window, nothing recorded for over a second.
		return 0
	}
	if elapsed := now - start; elapsed >= windowNs {
		return scaleRate(atomic.LoadUint64(&c.windowOps), elapsed)
	}
	return atomic.LoadUint64(&c.prevRate)
}

// Snapshot folds the counters plus a caller-supplied lag into one view.
func (c *Counters) Snapshot(lag uint64, th Thresholds) Snapshot {
	s := Snapshot{
		Operations: c.Operations(),
		Errors:     c.Errors(),
		RateHz:     c.Rate(),
		Lag:        lag,
	}
	if ts := atomic.LoadInt64(&c.lastOp); ts != 0 {
		s.LastOp = time.Unix(0, ts)
	}
	s.Healthy = s.Errors <= th.MaxErrors && s.Lag <= th.MaxLag
	return s
}

func scaleRate(ops uint64, elapsedNs int64) uint64 {
	if elapsedNs <= 0 {
		return 0
	}
	return uint64(float64(ops) * float64(time.Second) / float64(elapsedNs))
}

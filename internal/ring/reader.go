package ring

import (
	"sync/atomic"

	"github.com/vedarsh/kachow/pkg/exception"
)

// readRetries bounds how often a read restarts after losing a seqlock
// race with a lapping writer before it reports the gap as an overrun.
const readRetries = 4

// Meta carries the per-message metadata a read observed.
type Meta struct {
	Seq         uint64
	TimestampNs uint64
	PubID       uint16
	Skipped     uint64
}

// Cursor is a reader-local position in a ring. Every subscriber owns
// one; cursors never mutate shared state, so any number of them can
// read the same ring concurrently.
type Cursor struct {
	ring    *Ring
	last    uint64
	skipped uint64
}

// NewCursor returns a cursor positioned before the oldest available
// message, so a fresh reader sees everything still in the ring.
func NewCursor(r *Ring) *Cursor {
	return &Cursor{ring: r}
}

// Lag returns how many messages the cursor is behind the writer.
func (c *Cursor) Lag() uint64 {
	head := c.ring.Head()
	if head <= c.last {
		return 0
	}
	return head - c.last
}

// SkippedTotal returns the lifetime count of messages lost to overruns.
func (c *Cursor) SkippedTotal() uint64 { return c.skipped }

// Next copies the next unread message into buf. It never blocks.
//
// Returns ErrNoData when the cursor has caught up with the writer. When
// the writer has lapped the cursor the cursor is resynchronized to the
// oldest available slot and an *OverrunError carrying the skipped count
// is returned; the following call yields data. A slot whose stamp
// changes while the payload is being copied is never trusted: the read
// restarts and, if the race persists, degrades into the overrun path.
func (c *Cursor) Next(buf []byte) (int, Meta, error) {
	r := c.ring
	head := r.Head()
	next := c.last + 1
	if next > head {
		return 0, Meta{}, exception.ErrNoData
	}
	if head-next >= uint64(r.slotCount) {
		return 0, Meta{}, c.resync(head, next)
	}

	for attempt := 0; attempt < readRetries; attempt++ {
		sh, slot := r.slotAt(next)
		pre := atomic.LoadUint64(&sh.seq)

		if pre == 0 || pre&writingBit != 0 || pre < next {
			// Claimed but not committed yet (MWMR claim/commit gap, or
			// a lapping writer mid-write). Nothing consumable.
			return 0, Meta{}, exception.ErrNoData
		}
		if pre > next {
			// The slot was overwritten by a later lap.
			head = r.Head()
			if head-next >= uint64(r.slotCount) || pre-next >= uint64(r.slotCount) {
				return 0, Meta{}, c.resync(head, next)
			}
			continue
		}

		n := int(atomic.LoadUint32(&sh.payloadLen))
		if uint32(n) > r.slotSize {
			// Torn length, writer is mid-overwrite. Restart.
			continue
		}
		if n > len(buf) {
			c.last = next
			return 0, Meta{}, exception.ErrShortBuffer
		}
		ts := atomic.LoadUint64(&sh.timestampNs)
		pid := atomic.LoadUint32(&sh.pubID)
		copy(buf[:n], slot[:n])
		if atomic.LoadUint64(&sh.seq) != pre {
			// Stamp changed under the copy: torn read, discard.
			head = r.Head()
			if head-next >= uint64(r.slotCount) {
				return 0, Meta{}, c.resync(head, next)
			}
			continue
		}

		c.last = next
		return n, Meta{Seq: next, TimestampNs: ts, PubID: uint16(pid)}, nil
	}

	// Persistent racing means the writer laps faster than we can copy.
	return 0, Meta{}, c.resync(r.Head(), next)
}

// resync jumps the cursor to the oldest slot still guaranteed present
// and reports everything in between as skipped.
func (c *Cursor) resync(head, next uint64) error {
	newStart := uint64(1)
	if head > uint64(c.ring.slotCount) {
		newStart = head - uint64(c.ring.slotCount) + 1
	}
	if newStart <= next {
		// Writer barely ahead; treat as a single-slot race.
		newStart = next + 1
	}
	skipped := newStart - next
	c.last = newStart - 1
	c.skipped += skipped
	return &exception.OverrunError{Skipped: skipped}
}

package shmbus

import (
	"sync"
	"sync/atomic"

	"github.com/vedarsh/kachow/internal/health"
	"github.com/vedarsh/kachow/internal/ring"
	"github.com/vedarsh/kachow/internal/shmseg"
	"github.com/vedarsh/kachow/pkg/exception"
)

// Message is one received payload plus the slot metadata that came
// with it.
type Message struct {
	Payload     []byte
	Seq         uint64
	TimestampNs uint64
	PubID       uint16
}

// Subscriber consumes messages from one topic at its own pace. Each
// subscriber owns an independent cursor; a slow subscriber can fall
// behind the writer and will then observe an overrun, never torn data.
// Safe for concurrent use by multiple goroutines.
type Subscriber struct {
	ctx   *Context
	topic string
	seg   *shmseg.Segment
	ring  *ring.Ring

	mu      sync.Mutex
	cursor  *ring.Cursor
	scratch []byte

	lastSeq   atomic.Uint64
	counters  health.Counters
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewSubscriber attaches a subscriber to an existing topic. There is no
// implicit wait: when no segment exists the call fails with
// ErrTopicNotFound and the caller decides whether to retry.
func (c *Context) NewSubscriber(topic string) (*Subscriber, error) {
	seg, err := c.seg.Attach(topic)
	if err != nil {
		return nil, err
	}
	s := &Subscriber{
		ctx:     c,
		topic:   topic,
		seg:     seg,
		ring:    seg.Ring(),
		cursor:  ring.NewCursor(seg.Ring()),
		scratch: make([]byte, seg.Ring().SlotSize()),
	}
	if err := c.track(s); err != nil {
		seg.Close()
		return nil, err
	}
	c.debugf("subscriber created: topic=%s head=%d", topic, s.ring.Head())
	return s, nil
}

// Topic returns the topic this subscriber reads from.
func (s *Subscriber) Topic() string { return s.topic }

// RecvMsg returns the next unread message with its metadata. Never
// blocks: ErrNoData when caught up with the writer, *OverrunError when
// the writer lapped this cursor (the cursor is already resynchronized;
// the next call yields data). The returned payload is a fresh copy.
func (s *Subscriber) RecvMsg() (Message, error) {
	if s.closed.Load() {
		return Message{}, exception.ErrHandleClosed
	}
	s.mu.Lock()
	n, meta, err := s.cursor.Next(s.scratch)
	if err != nil {
		s.mu.Unlock()
		return Message{}, s.recvErr(err)
	}
	payload := make([]byte, n)
	copy(payload, s.scratch[:n])
	s.mu.Unlock()

	s.lastSeq.Store(meta.Seq)
	s.counters.RecordOp()
	return Message{
		Payload:     payload,
		Seq:         meta.Seq,
		TimestampNs: meta.TimestampNs,
		PubID:       meta.PubID,
	}, nil
}

// Recv returns the next unread payload. See RecvMsg for the error
// contract. A zero-length successful message returns an empty non-nil
// slice, distinct from the ErrNoData sentinel.
func (s *Subscriber) Recv() ([]byte, error) {
	msg, err := s.RecvMsg()
	if err != nil {
		return nil, err
	}
	return msg.Payload, nil
}

// RecvInto copies the next unread payload into buf and returns its
// length, avoiding the allocation Recv pays. ErrShortBuffer when buf
// cannot hold the message; the message is consumed either way.
func (s *Subscriber) RecvInto(buf []byte) (int, error) {
	if s.closed.Load() {
		return 0, exception.ErrHandleClosed
	}
	s.mu.Lock()
	n, meta, err := s.cursor.Next(buf)
	s.mu.Unlock()
	if err != nil {
		return 0, s.recvErr(err)
	}
	s.lastSeq.Store(meta.Seq)
	s.counters.RecordOp()
	return n, nil
}

// recvErr classifies a cursor error into the handle's counters. NoData
// is benign and not counted.
func (s *Subscriber) recvErr(err error) error {
	if err == exception.ErrNoData {
		return err
	}
	s.counters.RecordError()
	return err
}

// Lag returns how many messages this subscriber is behind the writer.
func (s *Subscriber) Lag() uint64 {
	head := s.ring.Head()
	last := s.lastSeq.Load()
	if head <= last {
		return 0
	}
	return head - last
}

// Skipped returns the lifetime count of messages lost to overruns.
func (s *Subscriber) Skipped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.SkippedTotal()
}

// Health snapshots this handle's telemetry without blocking receives.
func (s *Subscriber) Health() HandleHealth {
	return s.healthRow()
}

func (s *Subscriber) healthRow() HandleHealth {
	snap := s.counters.Snapshot(s.Lag(), s.ctx.th)
	return HandleHealth{
		App:           s.ctx.name,
		Topic:         s.topic,
		Kind:          KindSubscriber,
		Operations:    snap.Operations,
		Errors:        snap.Errors,
		RateHz:        snap.RateHz,
		Lag:           snap.Lag,
		LastOpNs:      lastOpNs(snap.LastOp),
		LastPublishNs: s.ring.LastPublishNs(),
		Healthy:       snap.Healthy,
	}
}

// Close detaches from the segment. Idempotent; the segment itself
// belongs to the publishers and survives subscriber churn.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.ctx.untrack(s)
		if s.seg != nil {
			err = s.seg.Close()
		}
	})
	return err
}

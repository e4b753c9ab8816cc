package shmbus

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/sys"

	"github.com/vedarsh/kachow/internal/health"
	"github.com/vedarsh/kachow/internal/ratelimit"
	"github.com/vedarsh/kachow/internal/ring"
	"github.com/vedarsh/kachow/internal/shmseg"
	"github.com/vedarsh/kachow/pkg/exception"
	"github.com/vedarsh/kachow/pkg/schema"
)

// Publisher writes messages into one topic's ring. Safe for concurrent
// use by multiple goroutines; write ordering between goroutines is then
// whatever the scheduler produces.
type Publisher struct {
	ctx       *Context
	topic     string
	opts      Options
	seg       *shmseg.Segment
	ring      *ring.Ring
	pubID     uint16
	bucket    *ratelimit.Bucket
	validator schema.Validator

	counters  health.Counters
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewPublisher creates a publisher handle for opts.Topic, creating the
// backing segment when this is the topic's first publisher. The context
// tracks the handle and enforces the single-writer rule for SWMR rings
// within the process.
func (c *Context) NewPublisher(opts Options) (*Publisher, error) {
	opts = opts.withDefaults()
	var validator schema.Validator
	if opts.SchemaName != "" {
		v, ok := c.schemas.Lookup(opts.SchemaName)
		if !ok {
			return nil, errors.Errorf("schema not registered: %s", opts.SchemaName)
		}
		validator = v
	}

	seg, created, err := c.seg.OpenOrCreate(opts.Topic, opts.ringConfig())
	if err != nil {
		return nil, err
	}
	if got := seg.Ring().Type(); got != ring.Type(opts.RingType) {
		seg.Close()
		return nil, errors.Errorf("topic %s is %s, publisher wants %s",
			opts.Topic, RingType(got), opts.RingType)
	}

	p := &Publisher{
		ctx:       c,
		topic:     opts.Topic,
		opts:      opts,
		seg:       seg,
		ring:      seg.Ring(),
		pubID:     c.nextPubID(),
		bucket:    ratelimit.NewBucket(opts.RateLimitHz),
		validator: validator,
	}
	if err := c.trackPublisher(opts.Topic, opts.RingType, p, created); err != nil {
		seg.Close()
		if created {
			c.unlinkTopic(opts.Topic)
		}
		return nil, err
	}
	c.debugf("publisher created: topic=%s type=%s slots=%d slot_size=%d created=%t",
		opts.Topic, opts.RingType, p.ring.SlotCount(), p.ring.SlotSize(), created)
	return p, nil
}

// Topic returns the topic this publisher writes to.
func (p *Publisher) Topic() string { return p.topic }

// SlotSize returns the payload capacity of the topic's slots.
func (p *Publisher) SlotSize() uint32 { return p.ring.SlotSize() }

// Send publishes payload into the next slot. The payload is copied
// straight from the caller's slice into shared memory, so callers with
// a pre-existing contiguous buffer pay exactly one copy.
//
// Rejections are typed: ErrSchemaInvalid, ErrRateLimited,
// ErrOversizePayload, ErrRingFull (non-blocking only), ErrSendTimeout
// (blocking only). The checks run in that order so a throttled payload
// is never half-validated into a slot.
func (p *Publisher) Send(payload []byte) error {
	return p.SendContext(context.Background(), payload)
}

// SendContext is Send with a caller-supplied context bounding the
// blocking path. Cancellation wins over BlockTimeout.
func (p *Publisher) SendContext(ctx context.Context, payload []byte) error {
	if p.closed.Load() {
		return exception.ErrHandleClosed
	}
	if p.validator != nil {
		if err := p.validator.Validate(payload); err != nil {
			p.counters.RecordError()
			return errors.Wrap(exception.ErrSchemaInvalid, err.Error())
		}
	}
	if !p.bucket.Allow() {
		p.counters.RecordError()
		return exception.ErrRateLimited
	}

	err := p.ring.Publish(payload, p.pubID)
	if stderrors.Is(err, exception.ErrRingFull) && p.opts.BlockOnFull {
		err = p.publishBlocking(ctx, payload)
	}
	if err != nil {
		p.counters.RecordError()
		return err
	}
	p.counters.RecordOp()
	return nil
}

// SendString publishes s through the encode-then-copy path.
func (p *Publisher) SendString(s string) error {
	return p.Send([]byte(s))
}

// publishBlocking retries a full-ring publish until a slot frees up,
// the caller's context is cancelled, the timeout elapses, the handle
// closes, or the process begins shutting down. Backoff doubles up to
// 1ms so a freed slot is picked up quickly without burning a core.
func (p *Publisher) publishBlocking(ctx context.Context, payload []byte) error {
	deadline := time.Now().Add(p.opts.BlockTimeout)
	backoff := 10 * time.Microsecond
	for {
		err := p.ring.Publish(payload, p.pubID)
		if !stderrors.Is(err, exception.ErrRingFull) {
			return err
		}
		if p.closed.Load() {
			return exception.ErrHandleClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sys.Shutdown():
			return exception.ErrShuttingDown
		default:
		}
		if !time.Now().Before(deadline) {
			return exception.ErrSendTimeout
		}
		time.Sleep(backoff)
		if backoff < time.Millisecond {
			backoff *= 2
		}
	}
}

// Health snapshots this handle's telemetry without blocking sends.
func (p *Publisher) Health() HandleHealth {
	return p.healthRow()
}

func (p *Publisher) healthRow() HandleHealth {
	s := p.counters.Snapshot(0, p.ctx.th)
	return HandleHealth{
		App:           p.ctx.name,
		Topic:         p.topic,
		Kind:          KindPublisher,
		Operations:    s.Operations,
		Errors:        s.Errors,
		RateHz:        s.RateHz,
		LastOpNs:      lastOpNs(s.LastOp),
		LastPublishNs: p.ring.LastPublishNs(),
		Healthy:       s.Healthy,
	}
}

// Close releases the handle. The last publisher of a ring this context
// created drains and unlinks the segment (publisher-owns-lifetime).
// Idempotent, and safe on partially constructed handles.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		unlink := p.ctx.releasePublisher(p.topic, p)
		if unlink && p.ring != nil {
			p.ring.BeginDrain()
			p.ring.MarkDestroyed()
		}
		if p.seg != nil {
			err = p.seg.Close()
		}
		if unlink {
			p.ctx.unlinkTopic(p.topic)
		}
	})
	return err
}

// Package shmbus is the public facade of the shared-memory transport:
// a Context owning publisher and subscriber handles over named topics,
// each topic backed by one fixed-layout ring buffer in a shared-memory
// segment. Handles operate independently after creation; the context
// only re-enters the picture at shutdown, where it tears down every
// handle it created.
package shmbus

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/vedarsh/kachow/internal/health"
	"github.com/vedarsh/kachow/internal/shmseg"
	"github.com/vedarsh/kachow/pkg/exception"
	"github.com/vedarsh/kachow/pkg/schema"
)

// Log levels for Config.LogLevel.
const (
	LogDebug = iota
	LogInfo
	LogWarn
	LogError
)

// Thresholds derive the healthy flag of a handle's telemetry.
type Thresholds struct {
	MaxLag    uint64
	MaxErrors uint64
}

// Config configures a Context.
type Config struct {
	// AppName labels log lines and telemetry rows. Default "kachow".
	AppName string
	// LogLevel gates the context's own logging. Default LogInfo.
	LogLevel int
	// Dir overrides the segment namespace directory (tests use a
	// temporary dir). Default: /dev/shm, falling back to the system
	// temp dir.
	Dir string
	// Schemas is the validator registry publishers resolve SchemaName
	// against. Default: a fresh empty registry.
	Schemas *schema.Registry
	// Health thresholds; zero value means the defaults (lag 100,
	// errors 0).
	Health Thresholds
}

type handle interface {
	Close() error
	healthRow() HandleHealth
}

// topicRef tracks the publishers a context holds on one topic.
type topicRef struct {
	pubs    int
	created bool
}

// Context is the process-side owner of transport handles. Multiple
// independent contexts can coexist in one process.
type Context struct {
	name    string
	level   int
	seg     *shmseg.Manager
	schemas *schema.Registry
	th      health.Thresholds

	mu       sync.Mutex
	handles  []handle
	pubRefs  map[string]*topicRef
	closed   bool
	pubIDSeq uint32
}

// Init creates a context. The only failure mode is an unusable
// namespace directory.
func Init(cfg Config) (*Context, error) {
	if cfg.AppName == "" {
		cfg.AppName = "kachow"
	}
	if cfg.Schemas == nil {
		cfg.Schemas = schema.NewRegistry()
	}
	if cfg.Dir != "" {
		info, err := os.Stat(cfg.Dir)
		if err != nil || !info.IsDir() {
			return nil, errors.Errorf("segment dir unusable: %s", cfg.Dir)
		}
	}
	th := health.Thresholds{MaxLag: cfg.Health.MaxLag, MaxErrors: cfg.Health.MaxErrors}
	if cfg.Health == (Thresholds{}) {
		th = health.DefaultThresholds()
	}
	c := &Context{
		name:    cfg.AppName,
		level:   cfg.LogLevel,
		seg:     shmseg.NewManager(cfg.Dir),
		schemas: cfg.Schemas,
		th:      th,
		pubRefs: make(map[string]*topicRef),
	}
	c.infof("context initialized: %s (segments in %s)", c.name, c.seg.Dir())
	return c, nil
}

// Name returns the application name the context was created with.
func (c *Context) Name() string { return c.name }

// Schemas returns the validator registry this context resolves schema
// names against.
func (c *Context) Schemas() *schema.Registry { return c.schemas }

// Shutdown destroys every handle the context created, newest first,
// then releases context state. Idempotent: safe to call repeatedly and
// after partial handle-creation failures.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	hs := make([]handle, len(c.handles))
	copy(hs, c.handles)
	c.handles = nil
	c.mu.Unlock()

	var firstErr error
	for i := len(hs) - 1; i >= 0; i-- {
		if err := hs[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.infof("context shutdown: %s (%d handles destroyed)", c.name, len(hs))
	return firstErr
}

// Healths snapshots the telemetry of every live handle. It never
// blocks concurrent sends or receives.
func (c *Context) Healths() []HandleHealth {
	c.mu.Lock()
	hs := make([]handle, len(c.handles))
	copy(hs, c.handles)
	c.mu.Unlock()

	rows := make([]HandleHealth, 0, len(hs))
	for _, h := range hs {
		rows = append(rows, h.healthRow())
	}
	return rows
}

func (c *Context) nextPubID() uint16 {
	return uint16(atomic.AddUint32(&c.pubIDSeq, 1))
}

// trackPublisher reserves a publisher slot on topic, enforcing the
// in-process single-writer rule for SWMR rings.
func (c *Context) trackPublisher(topic string, rt RingType, h handle, created bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return exception.ErrContextClosed
	}
	ref := c.pubRefs[topic]
	if ref == nil {
		ref = &topicRef{}
		c.pubRefs[topic] = ref
	}
	if rt == SWMR && ref.pubs > 0 {
		return errors.Errorf("topic %s already has a writer (ring is SWMR)", topic)
	}
	ref.pubs++
	if created {
		ref.created = true
	}
	c.handles = append(c.handles, h)
	return nil
}

// releasePublisher drops a publisher ref and reports whether the
// caller was the last writer of a ring this context created, in which
// case it must drain and unlink the segment.
func (c *Context) releasePublisher(topic string, h handle) (unlink bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.untrackLocked(h)
	ref := c.pubRefs[topic]
	if ref == nil {
		return false
	}
	ref.pubs--
	if ref.pubs > 0 {
		return false
	}
	delete(c.pubRefs, topic)
	return ref.created
}

func (c *Context) track(h handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return exception.ErrContextClosed
	}
	c.handles = append(c.handles, h)
	return nil
}

func (c *Context) untrack(h handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.untrackLocked(h)
}

func (c *Context) untrackLocked(h handle) {
	for i, cur := range c.handles {
		if cur == h {
			c.handles = append(c.handles[:i], c.handles[i+1:]...)
			return
		}
	}
}

func (c *Context) unlinkTopic(topic string) {
	if err := c.seg.Unlink(topic); err != nil {
		logs.Errorf("unlink topic %s, err: %+v", topic, err)
		return
	}
	c.infof("topic unlinked: %s", topic)
}

func (c *Context) infof(format string, args ...any) {
	if c.level <= LogInfo {
		logs.Infof(format, args...)
	}
}

func (c *Context) debugf(format string, args ...any) {
	if c.level <= LogDebug {
		logs.Infof(format, args...)
	}
}

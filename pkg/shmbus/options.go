package shmbus

import (
	"time"

	"github.com/vedarsh/kachow/internal/ring"
)

// RingType selects the writer discipline of a topic's ring.
type RingType uint32

//go:generate go tool stringer -type=RingType

const (
	// SWMR: single writer, multiple readers. The cheapest hot path;
	// holding write authority from more than one process at a time is
	// a usage error and is not supported.
	SWMR RingType = iota
	// MWMR: multiple writers coordinate slot claims atomically.
	MWMR
)

// Defaults applied by Options.withDefaults.
const (
	DefaultSlotCount    = 4096
	DefaultSlotSize     = 1024
	DefaultBlockTimeout = 2 * time.Second
)

// Options configures a publisher handle.
type Options struct {
	// Topic names the ring. Sanitized before use; see shmseg.
	Topic string
	// RingType defaults to SWMR.
	RingType RingType
	// SlotCount is rounded up to a power of two. Default 4096.
	SlotCount uint32
	// SlotSize is the max payload bytes per slot. Default 1024.
	SlotSize uint32
	// RateLimitHz caps sends per second; 0 means unlimited.
	RateLimitHz uint64
	// BlockOnFull makes Send wait for a slot instead of rejecting.
	BlockOnFull bool
	// BlockTimeout bounds a blocking send. Default 2s.
	BlockTimeout time.Duration
	// SchemaName selects a validator from the context's registry.
	// Empty means no validation.
	SchemaName string
}

func (o Options) withDefaults() Options {
	if o.SlotCount == 0 {
		o.SlotCount = DefaultSlotCount
	}
	if o.SlotSize == 0 {
		o.SlotSize = DefaultSlotSize
	}
	if o.BlockTimeout <= 0 {
		o.BlockTimeout = DefaultBlockTimeout
	}
	return o
}

func (o Options) ringConfig() ring.Config {
	return ring.Config{
		Type:      ring.Type(o.RingType),
		SlotCount: o.SlotCount,
		SlotSize:  o.SlotSize,
	}
}

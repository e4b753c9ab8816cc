// Package ring implements the fixed-layout shared-memory ring buffer
// behind every topic. A ring is a header followed by a power-of-two
// array of fixed-capacity slots. All cross-process state lives in the
// header and the per-slot sequence stamps; everything else is local to
// the attaching process.
package ring

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Type selects the writer discipline of a ring.
type Type uint32

//go:generate go tool stringer -type=Type

const (
	// SWMR allows exactly one writer process at a time. Writes advance
	// the head without cross-writer synchronization.
	SWMR Type = iota
	// MWMR coordinates multiple writers through an atomic slot claim.
	MWMR
)

// Ring lifecycle states, stored in the shared header.
const (
	StateUninitialized uint32 = iota
	StateActive
	StateDraining
	StateDestroyed
)

const (
	ringMagic   uint32 = 0x4B434857 // "KCHW"
	ringVersion uint32 = 1

	// HeaderSize is the fixed byte size of the shared ring header.
	HeaderSize = 128

	slotHeaderSize = 24

	// MaxSlotCount bounds slot counts so segment sizes stay sane.
	MaxSlotCount = 1 << 22
	// MaxSlotSize bounds the payload capacity of a single slot.
	MaxSlotSize = 16 << 20

	// writingBit marks a slot stamp as claimed but not yet committed.
	// Commit sequences never reach 2^63.
	writingBit uint64 = 1 << 63
)

// header is the shared ring header. Field order is the wire layout;
// mutation goes through atomic accessors only.
type header struct {
	magic      uint32
	version    uint32
	state      uint32
	ringType   uint32
	slotCount  uint32
	slotSize   uint32
	slotStride uint32
	_          uint32
	writeHead  uint64
	totalSize  uint64
	_          [80]byte
}

// slotHeader precedes every payload. seq is the seqlock stamp: a slot
// is only trusted when the stamp observed before and after copying the
// payload equals the expected commit sequence.
type slotHeader struct {
	seq         uint64
	timestampNs uint64
	payloadLen  uint32
	pubID       uint32
}

func init() {
	if unsafe.Sizeof(header{}) != HeaderSize {
		panic(fmt.Sprintf("ring header size is %d, expected %d", unsafe.Sizeof(header{}), HeaderSize))
	}
	if unsafe.Sizeof(slotHeader{}) != slotHeaderSize {
		panic(fmt.Sprintf("slot header size is %d, expected %d", unsafe.Sizeof(slotHeader{}), slotHeaderSize))
	}
}

// Config describes the geometry of a ring before normalization.
type Config struct {
	Type      Type
	SlotCount uint32
	SlotSize  uint32
}

// Normalize rounds SlotCount up to a power of two and SlotSize up to
// an 8-byte multiple, applying defaults for zero values.
func (c Config) Normalize() (Config, error) {
	if c.SlotCount == 0 {
		c.SlotCount = 4096
	}
	if c.SlotSize == 0 {
		c.SlotSize = 1024
	}
	if c.SlotCount > MaxSlotCount {
		return Config{}, fmt.Errorf("slot count %d exceeds maximum %d", c.SlotCount, MaxSlotCount)
	}
	if c.SlotSize > MaxSlotSize {
		return Config{}, fmt.Errorf("slot size %d exceeds maximum %d", c.SlotSize, MaxSlotSize)
	}
	if c.Type != SWMR && c.Type != MWMR {
		return Config{}, fmt.Errorf("unknown ring type %d", c.Type)
	}
	c.SlotCount = nextPowerOfTwo(c.SlotCount)
	c.SlotSize = alignUp(c.SlotSize, 8)
	return c, nil
}

// stride is the byte distance between consecutive slots.
func (c Config) stride() uint32 {
	return alignUp(slotHeaderSize+c.SlotSize, 8)
}

// SegmentSize returns the total byte size a segment needs for a
// normalized config: header plus slot array, 64-byte aligned.
func SegmentSize(c Config) (uint64, error) {
	c, err := c.Normalize()
	if err != nil {
		return 0, err
	}
	total := uint64(HeaderSize) + uint64(c.SlotCount)*uint64(c.stride())
	return uint64(alignUp64(total, 64)), nil
}

func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}

func alignUp(v, a uint32) uint32 {
	return (v + a - 1) &^ (a - 1)
}

func alignUp64(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

// Atomic header accessors. The header lives in shared memory, so every
// field that more than one process touches goes through sync/atomic.

func (h *header) Magic() uint32      { return atomic.LoadUint32(&h.magic) }
func (h *header) Version() uint32    { return atomic.LoadUint32(&h.version) }
func (h *header) State() uint32      { return atomic.LoadUint32(&h.state) }
func (h *header) SlotCount() uint32  { return atomic.LoadUint32(&h.slotCount) }
func (h *header) SlotSize() uint32   { return atomic.LoadUint32(&h.slotSize) }
func (h *header) SlotStride() uint32 { return atomic.LoadUint32(&h.slotStride) }
func (h *header) TotalSize() uint64  { return atomic.LoadUint64(&h.totalSize) }
func (h *header) Head() uint64       { return atomic.LoadUint64(&h.writeHead) }
func (h *header) ClaimNext() uint64  { return atomic.AddUint64(&h.writeHead, 1) }

// CasState transitions the lifecycle state, returning false when the
// ring was not in the expected state.
func (h *header) CasState(from, to uint32) bool {
	return atomic.CompareAndSwapUint32(&h.state, from, to)
}

// rollbackClaim undoes a claim that turned out unusable. Only the
// newest claim can roll back; anything older already has dependents.
func (h *header) rollbackClaim(seq uint64) bool {
	return atomic.CompareAndSwapUint64(&h.writeHead, seq, seq-1)
}

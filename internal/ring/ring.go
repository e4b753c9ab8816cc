package ring

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/yanun0323/errors"
)

// Ring is a process-local view over a mapped segment region. The
// region may be an mmap'd shared-memory file or, in tests, a plain
// byte slice; the engine only sees bytes.
type Ring struct {
	mem       []byte
	mask      uint64
	stride    uint64
	slotCount uint32
	slotSize  uint32
	typ       Type
}

// Init lays out a fresh ring in mem. mem must be zeroed and at least
// SegmentSize(cfg) bytes long. The ring transitions directly from
// uninitialized to active; other processes must not attach before Init
// returns.
func Init(mem []byte, cfg Config) (*Ring, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	total, err := SegmentSize(cfg)
	if err != nil {
		return nil, err
	}
	if uint64(len(mem)) < total {
		return nil, errors.Errorf("region too small: %d bytes, ring needs %d", len(mem), total)
	}

	h := (*header)(unsafe.Pointer(&mem[0]))
	if !h.CasState(StateUninitialized, StateActive) {
		return nil, errors.New("region already initialized")
	}
	h.version = ringVersion
	h.ringType = uint32(cfg.Type)
	h.slotCount = cfg.SlotCount
	h.slotSize = cfg.SlotSize
	h.slotStride = cfg.stride()
	h.totalSize = total
	// Magic goes in last: attachers gate on it, so the layout fields
	// above are settled by the time anyone trusts the region.
	atomic.StoreUint32(&h.magic, ringMagic)

	return view(mem, h), nil
}

// Attach validates an existing ring region and returns a view of it.
func Attach(mem []byte) (*Ring, error) {
	if len(mem) < HeaderSize {
		return nil, errors.Errorf("region too small for ring header: %d bytes", len(mem))
	}
	h := (*header)(unsafe.Pointer(&mem[0]))
	if h.Magic() != ringMagic {
		return nil, errors.New("bad ring magic")
	}
	if h.Version() != ringVersion {
		return nil, errors.Errorf("unsupported ring version %d", h.Version())
	}
	if h.State() == StateUninitialized || h.State() == StateDestroyed {
		return nil, errors.Errorf("ring not attachable in state %d", h.State())
	}
	sc := h.SlotCount()
	if sc == 0 || sc&(sc-1) != 0 {
		return nil, errors.Errorf("slot count %d is not a power of two", sc)
	}
	stride := h.SlotStride()
	if stride < slotHeaderSize+h.SlotSize() {
		return nil, errors.Errorf("slot stride %d smaller than header+payload", stride)
	}
	want := uint64(HeaderSize) + uint64(sc)*uint64(stride)
	if h.TotalSize() < want || uint64(len(mem)) < h.TotalSize() {
		return nil, fmt.Errorf("layout mismatch: total %d, slots need %d, region %d",
			h.TotalSize(), want, len(mem))
	}
	return view(mem, h), nil
}

func view(mem []byte, h *header) *Ring {
	return &Ring{
		mem:       mem,
		mask:      uint64(h.slotCount) - 1,
		stride:    uint64(h.slotStride),
		slotCount: h.slotCount,
		slotSize:  h.slotSize,
		typ:       Type(h.ringType),
	}
}

func (r *Ring) header() *header {
	return (*header)(unsafe.Pointer(&r.mem[0]))
}

// slotAt returns the slot header and payload area holding sequence seq.
func (r *Ring) slotAt(seq uint64) (*slotHeader, []byte) {
	idx := (seq - 1) & r.mask
	off := uint64(HeaderSize) + idx*r.stride
	sh := (*slotHeader)(unsafe.Pointer(&r.mem[off]))
	payload := r.mem[off+slotHeaderSize : off+slotHeaderSize+uint64(r.slotSize)]
	return sh, payload
}

// Head returns the current monotonic write head.
func (r *Ring) Head() uint64 { return r.header().Head() }

// Type returns the writer discipline of the ring.
func (r *Ring) Type() Type { return r.typ }

// SlotCount returns the number of slots.
func (r *Ring) SlotCount() uint32 { return r.slotCount }

// SlotSize returns the payload capacity of one slot.
func (r *Ring) SlotSize() uint32 { return r.slotSize }

// State returns the current lifecycle state.
func (r *Ring) State() uint32 { return r.header().State() }

// BeginDrain moves an active ring into the draining state. Writers are
// rejected from then on; readers keep consuming what is left.
func (r *Ring) BeginDrain() {
	r.header().CasState(StateActive, StateDraining)
}

// MarkDestroyed is the terminal transition, taken right before the
// segment is unlinked.
func (r *Ring) MarkDestroyed() {
	h := r.header()
	h.CasState(StateActive, StateDestroyed)
	h.CasState(StateDraining, StateDestroyed)
}

// OldestAvailable returns the lowest sequence a reader can still
// expect to find in the ring, or 0 when nothing was published yet.
func (r *Ring) OldestAvailable() uint64 {
	head := r.Head()
	if head == 0 {
		return 0
	}
	if head <= uint64(r.slotCount) {
		return 1
	}
	return head - uint64(r.slotCount) + 1
}

// LastPublishNs returns the commit timestamp of the newest slot, or 0
// when the head slot is not committed yet.
func (r *Ring) LastPublishNs() uint64 {
	head := r.Head()
	if head == 0 {
		return 0
	}
	sh, _ := r.slotAt(head)
	ts := loadUint64(&sh.timestampNs)
	if loadUint64(&sh.seq) != head {
		return 0
	}
	return ts
}

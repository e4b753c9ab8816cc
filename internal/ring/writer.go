package ring

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/vedarsh/kachow/pkg/exception"
)

// maxClaimSpins bounds how long an MWMR writer waits for the previous
// lap of its claimed slot to commit before treating the predecessor as
// stalled.
const maxClaimSpins = 100000

// Publish claims the next slot and commits payload into it.
//
// Full-ring policy (documented, consistent): publishes overwrite the
// oldest unread slot, so a write always succeeds from the writer's
// perspective and slow readers observe the gap as an overrun. The only
// writer-visible full condition is MWMR claim contention: the claimed
// slot still belongs to the writer one lap behind, which has not
// committed yet. When that wait exhausts its spin budget and the claim
// is the newest one, it is rolled back and reported as ErrRingFull so
// callers can retry (blocking handles do); otherwise the predecessor is
// presumed dead and the slot is stolen.
func (r *Ring) Publish(payload []byte, pubID uint16) error {
	if uint32(len(payload)) > r.slotSize {
		return exception.ErrOversizePayload
	}
	if r.State() != StateActive {
		return exception.ErrRingDraining
	}

	seq := r.header().ClaimNext()
	sh, slot := r.slotAt(seq)

	if r.typ == MWMR {
		if err := r.waitSlotFree(sh, seq); err != nil {
			return err
		}
	}

	// Seqlock write: invalidate the stamp, fill the slot, commit. A
	// reader copying concurrently sees the stamp change and discards.
	atomic.StoreUint64(&sh.seq, seq|writingBit)
	copy(slot, payload)
	atomic.StoreUint32(&sh.payloadLen, uint32(len(payload)))
	atomic.StoreUint32(&sh.pubID, uint32(pubID))
	atomic.StoreUint64(&sh.timestampNs, uint64(time.Now().UnixNano()))
	atomic.StoreUint64(&sh.seq, seq)
	return nil
}

// waitSlotFree spins until the slot's stamp is exactly the commit of
// the previous lap (zero on the first lap). Claims are handed out in
// order, so same-slot writers serialize lap by lap; the wait is bounded
// by the predecessor's copy time when everyone is alive.
func (r *Ring) waitSlotFree(sh *slotHeader, seq uint64) error {
	var want uint64
	if seq > uint64(r.slotCount) {
		want = seq - uint64(r.slotCount)
	}
	for i := 0; i < maxClaimSpins; i++ {
		if atomic.LoadUint64(&sh.seq) == want {
			return nil
		}
		if i > 16 {
			runtime.Gosched()
		}
	}

	// The predecessor looks stalled. If this is still the newest claim
	// it can be rolled back cleanly and reported full. Otherwise later
	// claims already depend on this sequence committing, so abandoning
	// it would stall the ring forever: steal the slot instead. Should a
	// zombie predecessor wake up and commit over us, its stale stamp is
	// caught by the reader's before/after check and never trusted.
	if r.header().rollbackClaim(seq) {
		return exception.ErrRingFull
	}
	return nil
}

func loadUint64(p *uint64) uint64 { return atomic.LoadUint64(p) }

package ring

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedarsh/kachow/pkg/exception"
)

func newTestRing(t *testing.T, cfg Config) *Ring {
	t.Helper()
	total, err := SegmentSize(cfg)
	require.NoError(t, err)
	r, err := Init(make([]byte, total), cfg)
	require.NoError(t, err)
	return r
}

func TestConfigNormalize(t *testing.T) {
	cfg, err := Config{Type: SWMR, SlotCount: 100, SlotSize: 33}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, uint32(128), cfg.SlotCount)
	assert.Equal(t, uint32(40), cfg.SlotSize)

	cfg, err = Config{Type: MWMR}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), cfg.SlotCount)
	assert.Equal(t, uint32(1024), cfg.SlotSize)

	_, err = Config{Type: SWMR, SlotCount: MaxSlotCount + 1}.Normalize()
	assert.Error(t, err)
	_, err = Config{Type: SWMR, SlotSize: MaxSlotSize + 1}.Normalize()
	assert.Error(t, err)
	_, err = Config{Type: Type(7)}.Normalize()
	assert.Error(t, err)
}

func TestAttachValidation(t *testing.T) {
	cfg := Config{Type: SWMR, SlotCount: 8, SlotSize: 64}
	total, err := SegmentSize(cfg)
	require.NoError(t, err)

	mem := make([]byte, total)
	_, err = Attach(mem)
	assert.Error(t, err, "zeroed region has no magic")

	_, err = Init(mem, cfg)
	require.NoError(t, err)
	_, err = Attach(mem)
	assert.NoError(t, err)

	_, err = Attach(mem[:HeaderSize-1])
	assert.Error(t, err, "region smaller than header")

	_, err = Init(mem, cfg)
	assert.Error(t, err, "double init must fail")
}

func TestRoundTrip(t *testing.T) {
	r := newTestRing(t, Config{Type: SWMR, SlotCount: 16, SlotSize: 64})
	c := NewCursor(r)
	buf := make([]byte, 64)

	for _, size := range []int{0, 1, 7, 32, 63, 64} {
		payload := bytes.Repeat([]byte{byte(size)}, size)
		require.NoError(t, r.Publish(payload, 3))

		n, meta, err := c.Next(buf)
		require.NoError(t, err)
		assert.Equal(t, size, n)
		assert.Equal(t, payload, buf[:n])
		assert.Equal(t, uint16(3), meta.PubID)
		assert.NotZero(t, meta.TimestampNs)
	}

	_, _, err := c.Next(buf)
	assert.ErrorIs(t, err, exception.ErrNoData, "caught up cursor returns the sentinel")
}

func TestZeroLengthMessageIsNotNoData(t *testing.T) {
	r := newTestRing(t, Config{Type: SWMR, SlotCount: 4, SlotSize: 32})
	require.NoError(t, r.Publish(nil, 0))

	c := NewCursor(r)
	n, _, err := c.Next(make([]byte, 32))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOversizeRejectedWithoutMutation(t *testing.T) {
	r := newTestRing(t, Config{Type: SWMR, SlotCount: 4, SlotSize: 32})
	head := r.Head()

	err := r.Publish(make([]byte, 33), 0)
	assert.ErrorIs(t, err, exception.ErrOversizePayload)
	assert.Equal(t, head, r.Head(), "rejected publish must not advance the head")
}

func TestRandomSizesClassified(t *testing.T) {
	const slotSize = 128
	r := newTestRing(t, Config{Type: SWMR, SlotCount: 64, SlotSize: slotSize})
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		size := rng.Intn(2*slotSize + 1)
		err := r.Publish(make([]byte, size), 0)
		if size <= slotSize {
			assert.NoError(t, err, "size %d must fit", size)
		} else {
			assert.ErrorIs(t, err, exception.ErrOversizePayload, "size %d must be rejected", size)
		}
	}
}

func TestOverrunDetectedAndResynced(t *testing.T) {
	const slotCount = 4
	r := newTestRing(t, Config{Type: SWMR, SlotCount: slotCount, SlotSize: 32})
	c := NewCursor(r)

	// Writer cycles well past the whole capacity while the reader
	// never keeps up.
	const published = 10
	for i := 0; i < published; i++ {
		require.NoError(t, r.Publish([]byte{byte(i)}, 0))
	}

	buf := make([]byte, 32)
	_, _, err := c.Next(buf)
	var overrun *exception.OverrunError
	require.ErrorAs(t, err, &overrun)
	assert.ErrorIs(t, err, exception.ErrOverrun)
	assert.Equal(t, uint64(published-slotCount), overrun.Skipped)
	assert.Equal(t, uint64(published-slotCount), c.SkippedTotal())

	// After resync the oldest surviving messages read back intact.
	for i := published - slotCount; i < published; i++ {
		n, meta, err := c.Next(buf)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		assert.Equal(t, byte(i), buf[0])
		assert.Equal(t, uint64(i+1), meta.Seq)
	}
	_, _, err = c.Next(buf)
	assert.ErrorIs(t, err, exception.ErrNoData)
}

func TestShortBufferConsumesMessage(t *testing.T) {
	r := newTestRing(t, Config{Type: SWMR, SlotCount: 4, SlotSize: 32})
	require.NoError(t, r.Publish(make([]byte, 20), 0))
	require.NoError(t, r.Publish([]byte("next"), 0))

	c := NewCursor(r)
	_, _, err := c.Next(make([]byte, 8))
	assert.ErrorIs(t, err, exception.ErrShortBuffer)

	n, _, err := c.Next(make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestIndependentCursors(t *testing.T) {
	r := newTestRing(t, Config{Type: SWMR, SlotCount: 8, SlotSize: 16})
	fast, slow := NewCursor(r), NewCursor(r)
	buf := make([]byte, 16)

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Publish([]byte{byte(i)}, 0))
	}
	for i := 0; i < 4; i++ {
		_, _, err := fast.Next(buf)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(0), fast.Lag())
	assert.Equal(t, uint64(4), slow.Lag(), "cursors advance independently")

	n, _, err := slow.Next(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, byte(0), buf[0])
}

func TestDrainingRejectsWrites(t *testing.T) {
	r := newTestRing(t, Config{Type: SWMR, SlotCount: 4, SlotSize: 16})
	require.NoError(t, r.Publish([]byte("a"), 0))
	r.BeginDrain()
	assert.ErrorIs(t, r.Publish([]byte("b"), 0), exception.ErrRingDraining)

	// Readers keep consuming what is left.
	c := NewCursor(r)
	_, _, err := c.Next(make([]byte, 16))
	assert.NoError(t, err)
}

func TestMWMRTortureManyWritersOneSlot(t *testing.T) {
	// 50 writers fighting over a single slot must keep making progress:
	// the claim/commit protocol serializes them lap by lap.
	r := newTestRing(t, Config{Type: MWMR, SlotCount: 1, SlotSize: 64})

	const writers = 50
	deadline := time.Now().Add(2 * time.Second)
	var sent uint64
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf("writer-%02d", id))
			for time.Now().Before(deadline) {
				err := r.Publish(payload, uint16(id))
				if err == nil {
					atomic.AddUint64(&sent, 1)
					continue
				}
				if !errors.Is(err, exception.ErrRingFull) {
					t.Errorf("writer %d: %v", id, err)
					return
				}
			}
		}(w)
	}

	var read uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		c := NewCursor(r)
		buf := make([]byte, 64)
		for time.Now().Before(deadline) {
			if _, _, err := c.Next(buf); err == nil {
				atomic.AddUint64(&read, 1)
			}
		}
	}()

	wg.Wait()
	<-done
	assert.Positive(t, atomic.LoadUint64(&sent), "writers must make progress")
	assert.Positive(t, atomic.LoadUint64(&read), "reader must observe committed slots")
}

func TestMWMRConcurrentWritersRoundTrip(t *testing.T) {
	r := newTestRing(t, Config{Type: MWMR, SlotCount: 1024, SlotSize: 16})

	const writers, perWriter = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				payload := []byte{byte(id), byte(i)}
				for {
					err := r.Publish(payload, uint16(id))
					if errors.Is(err, exception.ErrRingFull) {
						continue
					}
					if err != nil {
						t.Errorf("writer %d: %v", id, err)
						return
					}
					break
				}
			}
		}(w)
	}
	wg.Wait()

	// Every slot must be self-consistent: payload matches the pubID
	// stamped next to it.
	c := NewCursor(r)
	buf := make([]byte, 16)
	seen := 0
	perID := make(map[byte]int)
	for {
		n, meta, err := c.Next(buf)
		if errors.Is(err, exception.ErrNoData) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, 2, n)
		assert.Equal(t, uint16(buf[0]), meta.PubID)
		perID[buf[0]]++
		seen++
	}
	assert.Equal(t, writers*perWriter, seen)
	for id, count := range perID {
		assert.Equal(t, perWriter, count, "writer %d message count", id)
	}
}

func TestOldestAvailable(t *testing.T) {
	r := newTestRing(t, Config{Type: SWMR, SlotCount: 4, SlotSize: 16})
	assert.Equal(t, uint64(0), r.OldestAvailable())

	require.NoError(t, r.Publish([]byte("x"), 0))
	assert.Equal(t, uint64(1), r.OldestAvailable())

	for i := 0; i < 6; i++ {
		require.NoError(t, r.Publish([]byte("x"), 0))
	}
	assert.Equal(t, uint64(4), r.OldestAvailable())
}

func TestLastPublishNs(t *testing.T) {
	r := newTestRing(t, Config{Type: SWMR, SlotCount: 4, SlotSize: 16})
	assert.Zero(t, r.LastPublishNs())

	before := time.Now().UnixNano()
	require.NoError(t, r.Publish([]byte("x"), 0))
	ts := r.LastPublishNs()
	assert.GreaterOrEqual(t, int64(ts), before)
}

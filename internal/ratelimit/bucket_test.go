package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilBucketAllowsEverything(t *testing.T) {
	var b *Bucket
	for i := 0; i < 1000; i++ {
		require.True(t, b.Allow())
	}
	assert.Zero(t, b.Rejected())
}

func TestBurstThenReject(t *testing.T) {
	clock := time.Unix(0, 0)
	b := NewBucket(100) // burst 10
	b.now = func() time.Time { return clock }

	for i := 0; i < 10; i++ {
		assert.True(t, b.Allow(), "send %d within burst", i)
	}
	assert.False(t, b.Allow(), "burst exhausted")
	assert.Equal(t, uint64(1), b.Rejected())
}

func TestRefillOverTime(t *testing.T) {
	clock := time.Unix(0, 0)
	b := NewBucket(10) // burst 1
	b.now = func() time.Time { return clock }

	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	// 100ms at 10Hz refills exactly one token.
	clock = clock.Add(100 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	// A long idle stretch never accumulates past the burst.
	clock = clock.Add(time.Hour)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestMinimumBurstIsOne(t *testing.T) {
	b := NewBucket(1)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

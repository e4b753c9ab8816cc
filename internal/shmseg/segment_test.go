package shmseg

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedarsh/kachow/internal/ring"
	"github.com/vedarsh/kachow/pkg/exception"
)

var testCfg = ring.Config{Type: ring.SWMR, SlotCount: 8, SlotSize: 64}

func TestOpenOrCreateThenAttach(t *testing.T) {
	m := NewManager(t.TempDir())

	seg, created, err := m.OpenOrCreate("ticks", testCfg)
	require.NoError(t, err)
	require.True(t, created)
	defer seg.Close()

	// A second mapping of the same file sees what the first wrote,
	// which is exactly the cross-process case.
	other, err := m.Attach("ticks")
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, seg.Ring().Publish([]byte("hello"), 1))
	buf := make([]byte, 64)
	n, meta, err := ring.NewCursor(other.Ring()).Next(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.Equal(t, uint16(1), meta.PubID)
}

func TestOpenOrCreateLosingRaceAttaches(t *testing.T) {
	m := NewManager(t.TempDir())

	first, created, err := m.OpenOrCreate("ticks", testCfg)
	require.NoError(t, err)
	require.True(t, created)
	defer first.Close()

	second, created, err := m.OpenOrCreate("ticks", testCfg)
	require.NoError(t, err)
	assert.False(t, created, "existing segment degrades into attach")
	second.Close()
}

func TestAttachMissingTopic(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.Attach("nope")
	assert.ErrorIs(t, err, exception.ErrTopicNotFound)
}

func TestMaliciousNamesNeverTouchDisk(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	for _, name := range []string{"../escape", "a/b", "x\x00y", ""} {
		_, _, err := m.OpenOrCreate(name, testCfg)
		assert.ErrorIs(t, err, exception.ErrInvalidTopicName, "name %q", name)
		_, err = m.Attach(name)
		assert.ErrorIs(t, err, exception.ErrInvalidTopicName, "name %q", name)
		assert.ErrorIs(t, m.Unlink(name), exception.ErrInvalidTopicName, "name %q", name)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected names must leave the namespace untouched")
}

func TestFailedCreateLeavesNothingBehind(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	// Geometry the ring engine refuses: the half-created file must be
	// cleaned up.
	_, _, err := m.OpenOrCreate("bad", ring.Config{Type: ring.Type(9), SlotCount: 8, SlotSize: 64})
	require.ErrorIs(t, err, exception.ErrAllocationFailed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnlink(t *testing.T) {
	m := NewManager(t.TempDir())

	seg, _, err := m.OpenOrCreate("ticks", testCfg)
	require.NoError(t, err)

	assert.True(t, m.Exists("ticks"))
	require.NoError(t, m.Unlink("ticks"))
	assert.False(t, m.Exists("ticks"))

	_, err = m.Attach("ticks")
	assert.ErrorIs(t, err, exception.ErrTopicNotFound)
	assert.ErrorIs(t, m.Unlink("ticks"), exception.ErrTopicNotFound)

	// The existing mapping stays usable until its owner closes it.
	require.NoError(t, seg.Ring().Publish([]byte("still alive"), 0))
	require.NoError(t, seg.Close())
}

func TestSegmentCloseIdempotent(t *testing.T) {
	m := NewManager(t.TempDir())
	seg, _, err := m.OpenOrCreate("ticks", testCfg)
	require.NoError(t, err)

	require.NoError(t, seg.Close())
	require.NoError(t, seg.Close())
}

func TestList(t *testing.T) {
	m := NewManager(t.TempDir())
	topics, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, topics)

	for _, name := range []string{"alpha", "beta"} {
		seg, _, err := m.OpenOrCreate(name, testCfg)
		require.NoError(t, err)
		defer seg.Close()
	}
	topics, err = m.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, topics)
}

func TestAttachRejectsCorruptSegment(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	require.NoError(t, os.WriteFile(dir+"/"+segmentPrefix+"junk", make([]byte, 4096), 0o600))
	_, err := m.Attach("junk")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, exception.ErrTopicNotFound)
}

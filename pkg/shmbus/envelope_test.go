package shmbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedarsh/kachow/pkg/exception"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	sent := time.Unix(1700000000, 123456789)
	wrapped := WrapEnvelope(nil, sent, []byte("payload"))
	require.Len(t, wrapped, EnvelopeSize+7)

	ts, payload, err := UnwrapEnvelope(wrapped)
	require.NoError(t, err)
	assert.True(t, ts.Equal(sent))
	assert.Equal(t, []byte("payload"), payload)
}

func TestEnvelopeEmptyPayload(t *testing.T) {
	wrapped := WrapEnvelope(nil, time.Now(), nil)
	require.Len(t, wrapped, EnvelopeSize)

	_, payload, err := UnwrapEnvelope(wrapped)
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestEnvelopeReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 64)
	wrapped := WrapEnvelope(buf, time.Now(), []byte("abc"))
	assert.Equal(t, &buf[:1][0], &wrapped[0], "append into spare capacity")
}

func TestUnwrapShortEnvelope(t *testing.T) {
	_, _, err := UnwrapEnvelope([]byte{1, 2, 3})
	assert.ErrorIs(t, err, exception.ErrShortEnvelope)
}

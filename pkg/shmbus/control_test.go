package shmbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRoundTrip(t *testing.T) {
	for _, want := range []Command{
		{Name: CommandStop, Seq: 1},
		{Name: CommandStats, Seq: 42, Arg: "ticks"},
		{Name: "custom"},
	} {
		got, err := DecodeCommand(want.Encode())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeCommandMalformed(t *testing.T) {
	for _, payload := range [][]byte{
		nil,
		[]byte("{}"),
		[]byte(`{"seq":1}`),
		[]byte("not even json"),
	} {
		_, err := DecodeCommand(payload)
		assert.ErrorIs(t, err, ErrBadCommand, "payload %q", payload)
	}
}

func TestControlOverTheBus(t *testing.T) {
	ctx := newTestContext(t)
	pub, err := ctx.NewPublisher(Options{Topic: ControlTopic, RingType: MWMR, SlotCount: 8, SlotSize: 128})
	require.NoError(t, err)
	sub, err := ctx.NewSubscriber(ControlTopic)
	require.NoError(t, err)

	require.NoError(t, pub.Send(Command{Name: CommandStop, Seq: 7}.Encode()))

	payload, err := sub.Recv()
	require.NoError(t, err)
	cmd, err := DecodeCommand(payload)
	require.NoError(t, err)
	assert.Equal(t, CommandStop, cmd.Name)
	assert.Equal(t, uint64(7), cmd.Seq)
}

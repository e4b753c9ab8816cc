package shmbus

import (
	"encoding/binary"
	"time"

	"github.com/vedarsh/kachow/pkg/exception"
)

// EnvelopeSize is the byte size of the timestamp prefix cooperating
// processes put in front of their payloads. The ring itself never
// interprets it; this is an application-level convention.
const EnvelopeSize = 8

// WrapEnvelope appends an 8-byte little-endian nanosecond timestamp and
// payload to dst, returning the grown slice. Pass a reused dst[:0] to
// keep the hot path allocation-free.
func WrapEnvelope(dst []byte, ts time.Time, payload []byte) []byte {
	var prefix [EnvelopeSize]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(ts.UnixNano()))
	dst = append(dst, prefix[:]...)
	return append(dst, payload...)
}

// UnwrapEnvelope splits a wrapped message into its timestamp and
// payload. The payload aliases b; copy it before the buffer is reused.
func UnwrapEnvelope(b []byte) (time.Time, []byte, error) {
	if len(b) < EnvelopeSize {
		return time.Time{}, nil, exception.ErrShortEnvelope
	}
	ns := binary.LittleEndian.Uint64(b[:EnvelopeSize])
	return time.Unix(0, int64(ns)), b[EnvelopeSize:], nil
}

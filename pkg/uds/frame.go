package uds

import (
	"encoding/binary"
	"io"

	"github.com/vedarsh/kachow/pkg/exception"
)

// MaxFrameSize bounds a single bridged message. Ring slots top out well
// below this; anything larger means a corrupt or hostile stream.
const MaxFrameSize = 16 << 20

// WriteFrame writes one length-prefixed payload. The 4-byte
// little-endian length precedes the raw bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return exception.ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed payload into buf and returns its
// length. exception.ErrFrameTooLarge when the advertised length exceeds
// MaxFrameSize or the caller's buffer.
func ReadFrame(r io.Reader, buf []byte) (int, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	n := int(binary.LittleEndian.Uint32(hdr[:]))
	if n > MaxFrameSize || n > len(buf) {
		return 0, exception.ErrFrameTooLarge
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

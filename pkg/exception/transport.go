package exception

import (
	"errors"
	"fmt"
)

// Transport errors
var (
	ErrInvalidTopicName = errors.New("invalid topic name")
	ErrAllocationFailed = errors.New("segment allocation failed")
	ErrTopicNotFound    = errors.New("topic not found")
	ErrOversizePayload  = errors.New("payload exceeds slot size")
	ErrRateLimited      = errors.New("rate limited")
	ErrSchemaInvalid    = errors.New("schema validation failed")
	ErrRingFull         = errors.New("ring full")
	ErrRingDraining     = errors.New("ring draining")
	ErrNoData           = errors.New("no data")
	ErrOverrun          = errors.New("subscriber overrun")
	ErrShortBuffer      = errors.New("receive buffer too small")
	ErrShortEnvelope    = errors.New("message shorter than envelope")
	ErrSendTimeout      = errors.New("blocking send timed out")
	ErrShuttingDown     = errors.New("process shutting down")
	ErrHandleClosed     = errors.New("handle closed")
	ErrContextClosed    = errors.New("context closed")
)

// OverrunError reports that a subscriber cursor was invalidated by the
// writer overwriting unread slots. The cursor has already been moved to
// the oldest available slot; Skipped is the number of messages lost.
type OverrunError struct {
	Skipped uint64
}

func (e *OverrunError) Error() string {
	return fmt.Sprintf("subscriber overrun, skipped %d messages", e.Skipped)
}

// Is lets errors.Is(err, ErrOverrun) match an *OverrunError.
func (e *OverrunError) Is(target error) bool {
	return target == ErrOverrun
}

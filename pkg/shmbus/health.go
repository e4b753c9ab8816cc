package shmbus

import "time"

// Handle kinds reported in telemetry rows.
const (
	KindPublisher  = "publisher"
	KindSubscriber = "subscriber"
)

// HandleHealth is the polled telemetry view of one handle. Rates are
// measured over a trailing one-second window; Lag is only meaningful
// for subscribers. LastPublishNs is the commit timestamp of the newest
// slot in the topic's ring, usable as an inactivity probe regardless of
// which process published it.
type HandleHealth struct {
	App           string `json:"app"`
	Topic         string `json:"topic"`
	Kind          string `json:"kind"`
	Operations    uint64 `json:"operations"`
	Errors        uint64 `json:"errors"`
	RateHz        uint64 `json:"rateHz"`
	Lag           uint64 `json:"lag"`
	LastOpNs      int64  `json:"lastOpNs"`
	LastPublishNs uint64 `json:"lastPublishNs"`
	Healthy       bool   `json:"healthy"`
}

// Idle reports how long ago the topic last saw a publish, or false when
// nothing was ever published.
func (h HandleHealth) Idle(now time.Time) (time.Duration, bool) {
	if h.LastPublishNs == 0 {
		return 0, false
	}
	return now.Sub(time.Unix(0, int64(h.LastPublishNs))), true
}

func lastOpNs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

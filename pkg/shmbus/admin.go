package shmbus

import (
	"github.com/vedarsh/kachow/internal/ring"
)

// TopicStat is a point-in-time view of one topic's ring, read without
// creating a lasting handle.
type TopicStat struct {
	Topic           string   `json:"topic"`
	RingType        RingType `json:"ringType"`
	State           string   `json:"state"`
	SlotCount       uint32   `json:"slotCount"`
	SlotSize        uint32   `json:"slotSize"`
	Head            uint64   `json:"head"`
	OldestAvailable uint64   `json:"oldestAvailable"`
	LastPublishNs   uint64   `json:"lastPublishNs"`
}

var stateNames = map[uint32]string{
	ring.StateUninitialized: "uninitialized",
	ring.StateActive:        "active",
	ring.StateDraining:      "draining",
	ring.StateDestroyed:     "destroyed",
}

// Topics lists every topic with a segment in the context's namespace.
func (c *Context) Topics() ([]string, error) {
	return c.seg.List()
}

// Stat attaches to topic just long enough to read its ring header.
func (c *Context) Stat(topic string) (TopicStat, error) {
	seg, err := c.seg.Attach(topic)
	if err != nil {
		return TopicStat{}, err
	}
	defer seg.Close()

	r := seg.Ring()
	return TopicStat{
		Topic:           topic,
		RingType:        RingType(r.Type()),
		State:           stateNames[r.State()],
		SlotCount:       r.SlotCount(),
		SlotSize:        r.SlotSize(),
		Head:            r.Head(),
		OldestAvailable: r.OldestAvailable(),
		LastPublishNs:   r.LastPublishNs(),
	}, nil
}

// Unlink removes a topic's segment outright. This is the administrative
// escape hatch for segments orphaned by a crashed owner; live mappings
// in other processes stay valid until they close.
func (c *Context) Unlink(topic string) error {
	return c.seg.Unlink(topic)
}

package network

import (
	"github.com/voxel-agent/agentlink/internal/protocol"
)

// Observation is the outcome of observing a reliable seqnum.
type Observation uint8

const (
	Fresh Observation = iota
	Duplicate
)

// String returns the string representation of Observation.
func (o Observation) String() string {
	if o == Fresh {
		return "fresh"
	}
	return "duplicate"
}

// PendingAck is an acknowledgement owed to the peer.
type PendingAck struct {
	Seqnum  uint16
	Channel uint8
}

// TrackerStats counts observations since the tracker was created.
type TrackerStats struct {
	Fresh      uint64 `json:"fresh"`
	Duplicates uint64 `json:"duplicates"`
	AcksQueued uint64 `json:"acks_queued"`
}

// Tracker deduplicates reliable packets and queues the acks they require.
// A Tracker lives as long as one connection and is owned by the receive loop;
// it is not safe for concurrent use.
type Tracker struct {
	received [protocol.ChannelCount]map[uint16]struct{}
	pending  []PendingAck
	stats    TrackerStats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	for i := range t.received {
		t.received[i] = make(map[uint16]struct{})
	}
	return t
}

// Observe records seq on channel. The first observation is Fresh and queues
// one ack; every later one is a Duplicate and queues nothing.
func (t *Tracker) Observe(seq uint16, channel uint8) Observation {
	set := t.received[int(channel)%protocol.ChannelCount]
	if _, seen := set[seq]; seen {
		t.stats.Duplicates++
		return Duplicate
	}

	set[seq] = struct{}{}
	t.pending = append(t.pending, PendingAck{Seqnum: seq, Channel: channel})
	t.stats.Fresh++
	t.stats.AcksQueued++
	return Fresh
}

// DrainAcks returns the queued acks in arrival order and clears the queue.
func (t *Tracker) DrainAcks() []PendingAck {
	if len(t.pending) == 0 {
		return nil
	}
	out := t.pending
	t.pending = nil
	return out
}

// Stats returns a snapshot of the counters.
func (t *Tracker) Stats() TrackerStats {
	return t.stats
}

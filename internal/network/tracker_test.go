package network

import (
	"reflect"
	"testing"
)

func TestTracker_FreshThenDuplicate(t *testing.T) {
	tr := NewTracker()

	if got := tr.Observe(65500, 0); got != Fresh {
		t.Fatalf("first observation = %s, want fresh", got)
	}
	if got := tr.Observe(65500, 0); got != Duplicate {
		t.Fatalf("second observation = %s, want duplicate", got)
	}

	acks := tr.DrainAcks()
	want := []PendingAck{{Seqnum: 65500, Channel: 0}}
	if !reflect.DeepEqual(acks, want) {
		t.Fatalf("DrainAcks = %+v, want %+v", acks, want)
	}

	stats := tr.Stats()
	if stats.Fresh != 1 || stats.Duplicates != 1 || stats.AcksQueued != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTracker_ChannelsAreIndependent(t *testing.T) {
	tr := NewTracker()

	if tr.Observe(10, 0) != Fresh || tr.Observe(10, 1) != Fresh || tr.Observe(10, 2) != Fresh {
		t.Fatalf("same seqnum on different channels should be fresh")
	}
	if n := len(tr.DrainAcks()); n != 3 {
		t.Fatalf("expected 3 acks, got %d", n)
	}
}

func TestTracker_DrainPreservesOrderAndClears(t *testing.T) {
	tr := NewTracker()
	for _, seq := range []uint16{65535, 0, 7} {
		tr.Observe(seq, 1)
	}
	// Duplicate after a drain must still not queue an ack.
	first := tr.DrainAcks()
	tr.Observe(0, 1)

	want := []PendingAck{{65535, 1}, {0, 1}, {7, 1}}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("DrainAcks = %+v, want %+v", first, want)
	}
	if rest := tr.DrainAcks(); len(rest) != 0 {
		t.Fatalf("expected empty queue, got %+v", rest)
	}
}

func TestTracker_OutOfOrderIsDeliveredImmediately(t *testing.T) {
	tr := NewTracker()
	if tr.Observe(5, 0) != Fresh {
		t.Fatalf("seq 5 should be fresh")
	}
	// 3 and 4 never arrived; 6 is still fresh, no windowing.
	if tr.Observe(6, 0) != Fresh {
		t.Fatalf("seq 6 after a gap should be fresh")
	}
}

func TestTracker_ExhaustedSequenceSpaceStaysDuplicate(t *testing.T) {
	tr := NewTracker()

	for i := 0; i < 1<<16; i++ {
		tr.Observe(uint16(65500+i), 0)
	}
	tr.DrainAcks()

	// The sequence space has wrapped: every seqnum is now a duplicate and is not acked.
	if got := tr.Observe(65500, 0); got != Duplicate {
		t.Fatalf("wrapped seqnum = %s, want duplicate", got)
	}
	if acks := tr.DrainAcks(); acks != nil {
		t.Fatalf("duplicate queued acks: %+v", acks)
	}
	if got := tr.Observe(65500, 1); got != Fresh {
		t.Fatalf("other channel = %s, want fresh", got)
	}
}

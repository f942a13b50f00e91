package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/voxel-agent/agentlink/internal/protocol"
)

// fakePeer is a loopback UDP server that records what the client sends.
type fakePeer struct {
	t    *testing.T
	conn net.PacketConn
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	lc := ReuseAddrListenConfig()
	pc, err := lc.ListenPacket(context.Background(), "udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return &fakePeer{t: t, conn: pc}
}

func (f *fakePeer) port() int {
	return f.conn.LocalAddr().(*net.UDPAddr).Port
}

// recv reads one datagram and returns it together with the sender.
func (f *fakePeer) recv() (protocol.Packet, net.Addr) {
	f.t.Helper()
	buf := make([]byte, 2048)
	f.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, addr, err := f.conn.ReadFrom(buf)
	if err != nil {
		f.t.Fatalf("fake peer read failed: %v", err)
	}
	pkt, err := protocol.Decode(buf[:n])
	if err != nil {
		f.t.Fatalf("fake peer got undecodable datagram %x: %v", buf[:n], err)
	}
	return pkt, addr
}

func (f *fakePeer) send(to net.Addr, data []byte) {
	f.t.Helper()
	if _, err := f.conn.WriteTo(data, to); err != nil {
		f.t.Fatalf("fake peer write failed: %v", err)
	}
}

func TestTransport_PingAndDedupAck(t *testing.T) {
	peer := newFakePeer(t)

	tr, err := Dial(context.Background(), "127.0.0.1", peer.port(), TransportOptions{})
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer tr.Close()

	if err := tr.SendPing(); err != nil {
		t.Fatalf("SendPing returned error: %v", err)
	}
	ping, client := peer.recv()
	if ping.Kind != protocol.KindControl || ping.Control != protocol.ControlPing || ping.PeerID != protocol.PeerIDNil {
		t.Fatalf("expected ping from peer 0, got %s peer=%d", ping, ping.PeerID)
	}

	tr.SetPeerID(7)

	received := make(chan protocol.Packet, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tr.Run(ctx, func(p protocol.Packet) { received <- p })
	}()

	reliable := protocol.Encode(protocol.NewReliable(protocol.PeerIDServer, 1, 65500, protocol.ToClientTimeOfDay,
		protocol.TimeOfDay{Time: 6000, Speed: 72}.Encode()))
	peer.send(client, reliable)

	ack, _ := peer.recv()
	if ack.Control != protocol.ControlAck || ack.AckSeqnum() != 65500 || ack.Channel != 1 || ack.PeerID != 7 {
		t.Fatalf("unexpected ack: %s seq=%d peer=%d", ack, ack.AckSeqnum(), ack.PeerID)
	}

	// Garbage and a duplicate must both be dropped; the unreliable marker
	// afterwards proves the loop is still running.
	peer.send(client, []byte{0xde, 0xad, 0xbe, 0xef})
	peer.send(client, reliable)
	peer.send(client, protocol.Encode(protocol.NewUnreliable(protocol.PeerIDServer, 0, protocol.ToClientBlockData, nil)))

	first := <-received
	if first.PayloadType != protocol.ToClientTimeOfDay {
		t.Fatalf("expected TIME_OF_DAY first, got %s", first)
	}
	select {
	case second := <-received:
		if second.PayloadType != protocol.ToClientBlockData {
			t.Fatalf("duplicate was dispatched: %s", second)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("marker packet never dispatched")
	}

	stats := tr.Stats()
	if stats.Malformed != 1 || stats.Tracker.Duplicates != 1 || stats.Tracker.Fresh != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestTransport_CloseIsIdempotent(t *testing.T) {
	peer := newFakePeer(t)

	tr, err := Dial(context.Background(), "127.0.0.1", peer.port(), TransportOptions{})
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background(), func(protocol.Packet) {}) }()

	for i := 0; i < 3; i++ {
		if err := tr.Close(); err != nil {
			t.Fatalf("Close #%d returned error: %v", i+1, err)
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after Close, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after Close")
	}

	if err := tr.Send([]byte{1}); !errors.Is(err, ErrSocket) {
		t.Fatalf("Send after Close = %v, want ErrSocket", err)
	}
}

package connector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/voxel-agent/agentlink/internal/events"
	"github.com/voxel-agent/agentlink/internal/protocol"
)

// fakeServer is a scripted loopback game server.
type fakeServer struct {
	t      *testing.T
	conn   net.PacketConn
	client net.Addr
	seq    uint16
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return &fakeServer{t: t, conn: pc, seq: protocol.SeqnumInitial}
}

func (s *fakeServer) port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// read returns the next datagram from the client, raw and decoded.
func (s *fakeServer) read() ([]byte, protocol.Packet) {
	s.t.Helper()
	buf := make([]byte, 4096)
	s.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	n, addr, err := s.conn.ReadFrom(buf)
	if err != nil {
		s.t.Fatalf("fake server read failed: %v", err)
	}
	s.client = addr
	data := append([]byte(nil), buf[:n]...)
	pkt, err := protocol.Decode(data)
	if err != nil {
		s.t.Fatalf("client sent undecodable datagram %x: %v", data, err)
	}
	return data, pkt
}

// expectPayload skips control frames until an application payload arrives.
func (s *fakeServer) expectPayload(want uint16) ([]byte, protocol.Packet) {
	s.t.Helper()
	for {
		data, pkt := s.read()
		if pkt.Kind == protocol.KindControl {
			continue
		}
		if pkt.PayloadType != want {
			s.t.Fatalf("expected %s, got %s", protocol.ToServerName(want), pkt)
		}
		return data, pkt
	}
}

// expectControl skips other frames until a control frame of type want arrives.
func (s *fakeServer) expectControl(want protocol.ControlType) protocol.Packet {
	s.t.Helper()
	for {
		_, pkt := s.read()
		if pkt.Kind == protocol.KindControl && pkt.Control == want {
			return pkt
		}
	}
}

func (s *fakeServer) send(p protocol.Packet) {
	s.t.Helper()
	if _, err := s.conn.WriteTo(protocol.Encode(p), s.client); err != nil {
		s.t.Fatalf("fake server write failed: %v", err)
	}
}

func (s *fakeServer) sendReliable(payloadType uint16, body []byte) uint16 {
	s.t.Helper()
	seq := s.seq
	s.seq++
	s.send(protocol.NewReliable(protocol.PeerIDServer, protocol.ChannelDefault, seq, payloadType, body))
	return seq
}

// greet reads PING and INIT, then assigns peerID and sends HELLO.
func (s *fakeServer) greet(peerID uint16) {
	s.t.Helper()
	ping := s.expectControl(protocol.ControlPing)
	if ping.PeerID != protocol.PeerIDNil {
		s.t.Fatalf("PING should come from peer 0, got %d", ping.PeerID)
	}

	_, initPkt := s.expectPayload(protocol.ToServerInit)
	if initPkt.Kind != protocol.KindOriginal || initPkt.Channel != protocol.ChannelInit {
		s.t.Fatalf("INIT should be unreliable on channel %d, got %s", protocol.ChannelInit, initPkt)
	}

	s.send(protocol.NewSetPeerID(protocol.PeerIDServer, peerID))
	s.sendReliable(protocol.ToClientHello, protocol.Hello{
		SerializationVersion: protocol.SerializationVersion,
		ProtoVersion:         protocol.ProtoVersionMax,
		AuthMechanisms:       protocol.AuthMechLegacyPassword,
		Username:             "agent",
	}.Encode())
	s.expectPayload(protocol.ToServerInit2)
}

// accept completes the handshake started by greet.
func (s *fakeServer) accept() {
	s.t.Helper()
	s.sendReliable(protocol.ToClientAuthAccept, protocol.AuthAccept{SendInterval: 0.09}.Encode())
}

func newTestConnection(port int, bus *events.EventBus) *Connection {
	return NewConnection(Config{
		Host:        "127.0.0.1",
		Port:        port,
		Credentials: NewStaticCredentials("agent", "hunter2"),
		Lang:        "en",
	}, bus)
}

// connectAsync runs Connect in the background.
func connectAsync(c *Connection, opts ConnectOptions) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background(), opts) }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("Connect did not return")
		return nil
	}
}

func waitState(t *testing.T, c *Connection, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.State(), want)
}

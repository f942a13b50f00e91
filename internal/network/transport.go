// Package network implements the UDP transport for the reliable-UDP game
// protocol: the client socket, the receive loop, duplicate suppression and
// acknowledgement of reliable packets.
package network

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxel-agent/agentlink/internal/protocol"
)

// ErrSocket wraps OS-level send and receive failures.
var ErrSocket = errors.New("socket error")

// maxDatagramSize bounds a single receive.
const maxDatagramSize = 64 * 1024

// TransportOptions configures Dial.
type TransportOptions struct {
	// LocalPort binds the client socket to a fixed port. 0 picks an ephemeral one.
	LocalPort int
}

// TransportStats is a snapshot of transport counters.
type TransportStats struct {
	DatagramsIn  uint64       `json:"datagrams_in"`
	DatagramsOut uint64       `json:"datagrams_out"`
	Malformed    uint64       `json:"malformed"`
	Unsupported  uint64       `json:"unsupported"`
	Tracker      TrackerStats `json:"tracker"`
	LastActivity time.Time    `json:"last_activity"`
}

// Transport owns the UDP socket of one connection.
type Transport struct {
	conn    *net.UDPConn
	remote  string
	tracker *Tracker
	logger  zerolog.Logger

	mu     sync.Mutex
	peerID uint16
	stats  TransportStats
	closed bool
}

// Dial opens a UDP socket to host:port. It fails only if the OS refuses.
func Dial(ctx context.Context, host string, port int, opts TransportOptions) (*Transport, error) {
	remote := net.JoinHostPort(host, strconv.Itoa(port))

	d := ReuseAddrDialer(opts.LocalPort)
	c, err := d.DialContext(ctx, "udp", remote)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open UDP socket to %s: %v", ErrSocket, remote, err)
	}

	t := &Transport{
		conn:    c.(*net.UDPConn),
		remote:  remote,
		tracker: NewTracker(),
		logger: log.With().
			Str("component", "transport").
			Str("remote", remote).
			Logger(),
	}

	t.logger.Debug().Str("local", c.LocalAddr().String()).Msg("UDP socket opened")
	return t, nil
}

// RemoteAddr returns the server address.
func (t *Transport) RemoteAddr() string {
	return t.remote
}

// LocalAddr returns the bound local address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// SetPeerID sets the peer id used in outgoing frames built by the transport.
func (t *Transport) SetPeerID(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peerID = id
}

// PeerID returns the peer id used in outgoing frames.
func (t *Transport) PeerID() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerID
}

// SendPing sends the control/ping frame that opens the session.
func (t *Transport) SendPing() error {
	return t.SendPacket(protocol.NewPing(t.PeerID()))
}

// SendPacket encodes and sends p.
func (t *Transport) SendPacket(p protocol.Packet) error {
	if err := t.Send(protocol.Encode(p)); err != nil {
		return err
	}
	t.logger.Trace().Stringer("packet", p).Msg("sent")
	return nil
}

// Send writes one datagram. Delivery is not confirmed.
func (t *Transport) Send(data []byte) error {
	if _, err := t.conn.Write(data); err != nil {
		return fmt.Errorf("%w: failed to send %d bytes: %v", ErrSocket, len(data), err)
	}

	t.mu.Lock()
	t.stats.DatagramsOut++
	t.mu.Unlock()
	return nil
}

// Run reads datagrams until ctx is cancelled, Close is called, or the socket
// fails. Reliable packets are passed to handler only the first time they are
// seen; every fresh one is acked immediately. Undecodable datagrams are
// logged and dropped. Run returns nil on cancellation or Close, and an error
// wrapping ErrSocket on a read failure.
func (t *Transport) Run(ctx context.Context, handler func(protocol.Packet)) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || t.isClosed() {
				t.logger.Debug().Msg("receive loop stopping")
				return nil
			}
			t.logger.Error().Err(err).Msg("UDP read error")
			return fmt.Errorf("%w: receive failed: %v", ErrSocket, err)
		}

		t.handleDatagram(buf[:n], handler)
	}
}

func (t *Transport) handleDatagram(data []byte, handler func(protocol.Packet)) {
	t.mu.Lock()
	t.stats.DatagramsIn++
	t.stats.LastActivity = time.Now()
	t.mu.Unlock()

	if e := t.logger.Trace(); e.Enabled() {
		e.Int("len", len(data)).Str("hex", hex.EncodeToString(data)).Msg("received")
	}

	pkt, err := protocol.Decode(data)
	if err != nil {
		t.mu.Lock()
		if errors.Is(err, protocol.ErrUnsupported) {
			t.stats.Unsupported++
		} else {
			t.stats.Malformed++
		}
		t.mu.Unlock()

		t.logger.Warn().Err(err).Int("len", len(data)).Msg("dropping datagram")
		return
	}

	if pkt.IsReliable() {
		obs := t.tracker.Observe(pkt.Seqnum, pkt.Channel)

		t.mu.Lock()
		t.stats.Tracker = t.tracker.Stats()
		t.mu.Unlock()

		if obs == Duplicate {
			t.logger.Debug().
				Uint16("seqnum", pkt.Seqnum).
				Uint8("channel", pkt.Channel).
				Msg("duplicate reliable packet suppressed")
		} else {
			handler(pkt)
		}
		t.flushAcks()
		return
	}

	handler(pkt)
}

func (t *Transport) flushAcks() {
	peerID := t.PeerID()
	for _, ack := range t.tracker.DrainAcks() {
		if err := t.SendPacket(protocol.NewAck(peerID, ack.Channel, ack.Seqnum)); err != nil {
			t.logger.Warn().
				Err(err).
				Uint16("seqnum", ack.Seqnum).
				Uint8("channel", ack.Channel).
				Msg("failed to send ack")
		}
	}
}

// Stats returns a snapshot of the transport counters.
func (t *Transport) Stats() TransportStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close closes the socket. It is safe to call more than once and from any
// goroutine.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.logger.Debug().Msg("UDP socket closed")
	return t.conn.Close()
}

// Package connector implements the client side of the game connection: the
// handshake state machine, packet dispatch and the command API used by the
// agent.
package connector

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxel-agent/agentlink/internal/events"
	"github.com/voxel-agent/agentlink/internal/network"
	"github.com/voxel-agent/agentlink/internal/protocol"
)

const (
	seqnumInitial = protocol.SeqnumInitial

	// DefaultHandshakeTimeout bounds Connect when ConnectOptions leaves it zero.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Config identifies the server and account of a Connection.
type Config struct {
	Host        string
	Port        int
	Credentials Credentials
	Lang        string
	LocalPort   int
}

// ConnectOptions tunes a single Connect call.
type ConnectOptions struct {
	// HandshakeTimeout defaults to DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// AllowUnauthenticated accepts a server that sent HELLO but never
	// confirmed authentication before the deadline. Commands are then
	// allowed while the state stays AwaitingAuth.
	AllowUnauthenticated bool
}

// Status is a snapshot of a Connection for reporting.
type Status struct {
	Server        string                 `json:"server"`
	State         State                  `json:"state"`
	PeerID        uint16                 `json:"peer_id"`
	Authenticated bool                   `json:"authenticated"`
	Lenient       bool                   `json:"lenient"`
	Player        PlayerState            `json:"player"`
	Denial        string                 `json:"denial,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	ConnectedAt   time.Time              `json:"connected_at"`
	Transport     network.TransportStats `json:"transport"`
}

// Connection is one client session with a game server. A Connection is
// single-use: after it reaches Disconnected a new one must be created.
type Connection struct {
	mu sync.Mutex

	cfg      Config
	server   string
	eventBus *events.EventBus
	logger   zerolog.Logger

	st          connState
	used        bool
	transport   *network.Transport
	connectedAt time.Time

	// handshake receives the outcome of Connect exactly once.
	handshake chan error
	resolved  bool
	stopRun   context.CancelFunc
	runDone   chan struct{}

	dispatcher *Dispatcher
}

// NewConnection creates a disconnected Connection. eventBus may be nil.
func NewConnection(cfg Config, eventBus *events.EventBus) *Connection {
	server := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c := &Connection{
		cfg:       cfg,
		server:    server,
		eventBus:  eventBus,
		st:        newConnState(),
		handshake: make(chan error, 1),
		runDone:   make(chan struct{}),
		logger: log.With().
			Str("component", "connector").
			Str("server", server).
			Logger(),
	}
	c.dispatcher = NewDispatcher(c)
	return c
}

// Connect opens the socket, runs the handshake, and blocks until the
// connection is Ready, the server denies access, the handshake deadline
// passes, ctx is cancelled, or Disconnect is called.
func (c *Connection) Connect(ctx context.Context, opts ConnectOptions) error {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	c.mu.Lock()
	if c.used {
		c.mu.Unlock()
		return ErrAlreadyUsed
	}
	c.used = true
	c.mu.Unlock()

	c.logger.Info().Dur("timeout", timeout).Msg("connecting")

	t, err := network.Dial(ctx, c.cfg.Host, c.cfg.Port, network.TransportOptions{LocalPort: c.cfg.LocalPort})
	if err != nil {
		close(c.runDone)
		return fmt.Errorf("failed to connect to %s: %w", c.server, err)
	}

	runCtx, stopRun := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.resolved {
		// Disconnect was called while the socket was being opened.
		c.mu.Unlock()
		stopRun()
		t.Close()
		close(c.runDone)
		return <-c.handshake
	}
	c.transport = t
	c.stopRun = stopRun
	c.connectedAt = time.Now()
	ev, _ := c.transition(TriggerConnect, "")
	c.mu.Unlock()
	c.emitState(ev)

	go c.receive(runCtx, t)

	if err := c.sendHello(t); err != nil {
		return c.handshakeStartFailed(err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-c.handshake:
		return err
	case <-ctx.Done():
		c.terminate(TriggerDisconnect, "connect cancelled", ctx.Err())
		return ctx.Err()
	case <-timer.C:
		return c.handshakeExpired(opts)
	}
}

// sendHello sends PING and INIT, both unreliable, with peer id 0.
func (c *Connection) sendHello(t *network.Transport) error {
	if err := t.SendPing(); err != nil {
		return err
	}

	hello := protocol.NewInit(c.username())
	return t.SendPacket(protocol.NewUnreliable(protocol.PeerIDNil, protocol.ChannelInit, protocol.ToServerInit, hello.Encode()))
}

// handshakeStartFailed ends the connection after PING or INIT could not be
// sent. A Disconnect that already resolved Connect keeps its outcome.
func (c *Connection) handshakeStartFailed(err error) error {
	c.mu.Lock()
	c.resolveLocked(fmt.Errorf("failed to start handshake with %s: %w", c.server, err))
	c.mu.Unlock()

	c.terminate(TriggerSocketError, err.Error(), err)
	return <-c.handshake
}

func (c *Connection) handshakeExpired(opts ConnectOptions) error {
	c.mu.Lock()
	state := c.st.state
	hello := c.st.helloReceived

	if opts.AllowUnauthenticated && hello && state == AwaitingAuth {
		c.st.lenient = true
		c.resolved = true
		ev := c.stateEvent(state, state, TriggerTimeout, "authentication not confirmed, continuing unauthenticated")
		c.mu.Unlock()

		c.logger.Warn().Msg("no AUTH_ACCEPT before deadline, continuing unauthenticated")
		c.emitState(ev)
		return nil
	}
	c.mu.Unlock()

	// The handshake may have resolved while the timer fired.
	select {
	case err := <-c.handshake:
		return err
	default:
	}

	herr := &HandshakeError{HelloReceived: hello, State: state, Err: ErrTimeout}
	c.terminate(TriggerTimeout, "handshake timed out", herr)
	c.logger.Warn().Str("state", state.String()).Bool("hello_received", hello).Msg("handshake timed out")
	return herr
}

// receive runs the transport loop and forces Disconnected when it fails.
func (c *Connection) receive(ctx context.Context, t *network.Transport) {
	defer close(c.runDone)

	if err := t.Run(ctx, c.dispatcher.Dispatch); err != nil {
		c.logger.Error().Err(err).Msg("receive loop failed")
		c.terminate(TriggerSocketError, err.Error(), err)
	}
}

// Disconnect ends the session. It is safe to call in any state, more than
// once, and while Connect is in flight.
func (c *Connection) Disconnect() error {
	c.terminate(TriggerDisconnect, "disconnect requested", ErrDisconnected)
	return nil
}

// Done returns a channel closed after the receive loop has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.runDone
}

// terminate moves to Disconnected, closes the socket and resolves a pending
// Connect with cause.
func (c *Connection) terminate(trigger Trigger, reason string, cause error) {
	c.mu.Lock()
	if c.st.state == Disconnected {
		if c.used && c.transport == nil {
			c.resolveLocked(cause)
		}
		c.mu.Unlock()
		return
	}

	ev, ok := c.transition(trigger, reason)
	if !ok {
		c.mu.Unlock()
		return
	}

	t := c.transport
	peerID := c.st.peerID
	stop := c.stopRun
	c.st.player = PlayerState{}
	c.st.authenticated = false
	c.st.lenient = false
	c.st.reason = reason
	c.resolveLocked(cause)
	c.mu.Unlock()

	if t != nil {
		if trigger == TriggerDisconnect && peerID != protocol.PeerIDNil {
			if err := t.SendPacket(protocol.NewDisco(peerID)); err != nil {
				c.logger.Debug().Err(err).Msg("failed to send disco")
			}
		}
		t.Close()
	}
	if stop != nil {
		stop()
	}

	c.logger.Info().Str("trigger", trigger.String()).Str("reason", reason).Msg("disconnected")
	c.emitState(ev)
}

// transition applies trigger to the current state. Illegal triggers are
// logged and ignored. Must be called with c.mu held.
func (c *Connection) transition(trigger Trigger, reason string) (*events.Event, bool) {
	from := c.st.state
	to, ok := nextState(from, trigger)
	if !ok {
		c.logger.Warn().
			Str("state", from.String()).
			Str("trigger", trigger.String()).
			Msg("ignoring trigger not valid in current state")
		return nil, false
	}

	c.st.state = to
	if from == to {
		return nil, true
	}

	c.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("trigger", trigger.String()).
		Msg("state transition")

	return c.stateEvent(from, to, trigger, reason), true
}

// stateEvent must be called with c.mu held.
func (c *Connection) stateEvent(from, to State, trigger Trigger, reason string) *events.Event {
	return &events.Event{
		Type:   events.EventConnectionState,
		Source: "connector",
		Payload: events.ConnectionStatePayload{
			Server:        c.server,
			From:          from.String(),
			To:            to.String(),
			Trigger:       trigger.String(),
			PeerID:        c.st.peerID,
			Authenticated: c.st.authenticated,
			Lenient:       c.st.lenient,
			Reason:        reason,
		},
	}
}

// resolveLocked delivers the Connect outcome once. Must be called with c.mu held.
func (c *Connection) resolveLocked(err error) {
	if c.resolved {
		return
	}
	c.resolved = true
	c.handshake <- err
}

func (c *Connection) emitState(ev *events.Event) {
	if ev == nil || c.eventBus == nil {
		return
	}
	c.eventBus.EmitSync(context.Background(), *ev)
}

func (c *Connection) emit(ev events.Event) {
	if c.eventBus == nil {
		return
	}
	if ev.Source == "" {
		ev.Source = "connector"
	}
	c.eventBus.Emit(context.Background(), ev)
}

func (c *Connection) username() string {
	if c.cfg.Credentials == nil {
		return ""
	}
	return c.cfg.Credentials.Username()
}

func (c *Connection) password() string {
	if c.cfg.Credentials == nil {
		return ""
	}
	return c.cfg.Credentials.Password()
}

// sendReliableLocked sends a reliable payload on the default channel with
// the next outbound seqnum. Must be called with c.mu held.
func (c *Connection) sendReliableLocked(payloadType uint16, body []byte) (uint16, error) {
	if c.transport == nil {
		return 0, ErrNotConnected
	}
	seq := c.st.outSeq
	pkt := protocol.NewReliable(c.st.peerID, protocol.ChannelDefault, seq, payloadType, body)
	if err := c.transport.SendPacket(pkt); err != nil {
		return 0, fmt.Errorf("failed to send %s: %w", protocol.ToServerName(payloadType), err)
	}
	c.st.outSeq++
	return seq, nil
}

// ---- Inbound handlers, called from the receive loop ----

// HandleSetPeerID stores the peer id assigned by the server.
func (c *Connection) HandleSetPeerID(peerID uint16) {
	c.mu.Lock()
	if c.st.state == Disconnected {
		c.mu.Unlock()
		return
	}
	from := c.st.state
	_, ok := c.transition(TriggerSetPeerID, "")

	// SET_PEER_ID is unreliable and may arrive after HELLO. The id is
	// still needed when HELLO did not carry one.
	assign := ok || c.st.peerID == protocol.PeerIDNil
	if assign && peerID != protocol.PeerIDNil {
		c.st.peerID = peerID
		c.transport.SetPeerID(peerID)
	}
	var ev *events.Event
	if ok {
		ev = c.stateEvent(from, c.st.state, TriggerSetPeerID, "")
	}
	c.mu.Unlock()

	if assign {
		c.logger.Info().Uint16("peer_id", peerID).Str("state", from.String()).Msg("peer id assigned")
	}
	c.emitState(ev)
}

// HandleHello records the server's HELLO and answers with INIT2.
func (c *Connection) HandleHello(m protocol.Hello) {
	c.mu.Lock()
	from := c.st.state
	_, ok := c.transition(TriggerHello, "")
	if !ok {
		c.mu.Unlock()
		return
	}

	c.st.helloReceived = true
	if m.HasPeerID && m.PeerID != protocol.PeerIDNil {
		c.st.peerID = m.PeerID
		c.transport.SetPeerID(m.PeerID)
	}

	_, err := c.sendReliableLocked(protocol.ToServerInit2, protocol.Init2{Lang: c.cfg.Lang}.Encode())
	ev := c.stateEvent(from, c.st.state, TriggerHello, "")
	c.mu.Unlock()

	if err != nil {
		c.logger.Error().Err(err).Msg("failed to send INIT2")
	}

	c.logger.Info().
		Uint16("proto_version", m.ProtoVersion).
		Uint32("auth_mechanisms", m.AuthMechanisms).
		Str("username", m.Username).
		Msg("server hello")
	c.emitState(ev)
}

// HandleAuthMechanism answers the server's credential request.
func (c *Connection) HandleAuthMechanism(m protocol.AuthMechanism) {
	if m.Mechanisms&protocol.AuthMechLegacyPassword == 0 {
		c.logger.Warn().
			Uint32("mechanisms", m.Mechanisms).
			Msg("server does not advertise legacy password auth, sending it anyway")
	}

	c.mu.Lock()
	if _, ok := c.transition(TriggerAuthMechanism, ""); !ok {
		c.mu.Unlock()
		return
	}
	resp := protocol.PasswordLegacy{Username: c.username(), Password: c.password()}
	_, err := c.sendReliableLocked(protocol.ToServerPasswordLegacy, resp.Encode())
	c.mu.Unlock()

	if err != nil {
		c.logger.Error().Err(err).Msg("failed to send credentials")
		return
	}
	c.logger.Debug().Msg("credentials sent")
}

// HandleAuthAccept completes the handshake.
func (c *Connection) HandleAuthAccept(m protocol.AuthAccept) {
	c.logger.Debug().
		Uint64("map_seed", m.MapSeed).
		Float32("send_interval", m.SendInterval).
		Msg("authentication accepted")
	c.accept()
}

// HandleInitLegacy treats the legacy INIT reply as an acceptance.
func (c *Connection) HandleInitLegacy() {
	c.logger.Debug().Msg("legacy init accepted")
	c.accept()
}

func (c *Connection) accept() {
	c.mu.Lock()
	from := c.st.state
	if _, ok := c.transition(TriggerAuthAccept, ""); !ok {
		c.mu.Unlock()
		return
	}
	c.st.authenticated = true
	c.st.lenient = false
	c.resolveLocked(nil)
	ev := c.stateEvent(from, c.st.state, TriggerAuthAccept, "")
	peerID := c.st.peerID
	c.mu.Unlock()

	c.logger.Info().Uint16("peer_id", peerID).Msg("connection ready")
	c.emitState(ev)
}

// HandleAccessDenied records the denial and disconnects.
func (c *Connection) HandleAccessDenied(m protocol.AccessDenied) {
	denial := &DeniedError{Code: m.Code, Reason: m.Reason(), Reconnect: m.Reconnect}

	c.mu.Lock()
	if _, ok := nextState(c.st.state, TriggerAccessDenied); !ok {
		c.mu.Unlock()
		c.logger.Warn().Str("reason", denial.Reason).Msg("ignoring ACCESS_DENIED while disconnected")
		return
	}
	c.st.denial = denial
	c.mu.Unlock()

	c.logger.Warn().Uint8("code", m.Code).Str("reason", denial.Reason).Msg("access denied")
	// Subscribers see the denial before the session is reported closed.
	c.emitState(&events.Event{
		Type:   events.EventAccessDenied,
		Source: "connector",
		Payload: events.AccessDeniedPayload{
			Server:    c.server,
			Code:      m.Code,
			Reason:    denial.Reason,
			Reconnect: m.Reconnect,
		},
	})
	c.terminate(TriggerAccessDenied, denial.Reason, denial)
}

// HandleDisco handles the server closing the session.
func (c *Connection) HandleDisco() {
	c.terminate(TriggerPeerDisco, "server closed connection", ErrDisconnected)
}

// HandleBlockData publishes the received block position.
func (c *Connection) HandleBlockData(m protocol.BlockData) {
	c.logger.Trace().
		Int16("x", m.Pos[0]).Int16("y", m.Pos[1]).Int16("z", m.Pos[2]).
		Int("size", len(m.Data)).
		Msg("block data")
	c.emit(events.Event{
		Type:    events.EventBlockData,
		Payload: events.BlockDataPayload{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2], Size: len(m.Data)},
	})
}

// HandleTimeOfDay publishes the in-game time.
func (c *Connection) HandleTimeOfDay(m protocol.TimeOfDay) {
	c.emit(events.Event{
		Type:    events.EventTimeOfDay,
		Payload: events.TimeOfDayPayload{Time: m.Time, Speed: m.Speed},
	})
}

// HandleChatMessage publishes a chat line received from the server.
func (c *Connection) HandleChatMessage(m protocol.ServerChatMessage) {
	ts := time.Now()
	if m.Timestamp != 0 {
		ts = time.Unix(m.Timestamp, 0)
	}

	c.logger.Info().Str("sender", m.Sender).Str("message", m.Message).Msg("chat")
	c.emit(events.Event{
		Type: events.EventChatMessage,
		Payload: events.ChatMessagePayload{
			Direction: events.ChatIncoming,
			Type:      protocol.ChatTypeName(m.Type),
			Sender:    m.Sender,
			Message:   m.Message,
			Timestamp: ts,
		},
	})
}

// ---- Observers ----

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.state
}

// Connected reports whether the handshake has started and not ended.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.state != Disconnected
}

// Authenticated reports whether the server accepted the credentials.
func (c *Connection) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.authenticated
}

// Lenient reports whether the connection continued without AUTH_ACCEPT.
func (c *Connection) Lenient() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.lenient
}

// PeerID returns the peer id assigned by the server, or 0.
func (c *Connection) PeerID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.peerID
}

// Denial returns the server's ACCESS_DENIED, or nil.
func (c *Connection) Denial() *DeniedError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.denial
}

// Server returns host:port of the server.
func (c *Connection) Server() string {
	return c.server
}

// Status returns a snapshot for reporting.
func (c *Connection) Status() Status {
	c.mu.Lock()
	s := Status{
		Server:        c.server,
		State:         c.st.state,
		PeerID:        c.st.peerID,
		Authenticated: c.st.authenticated,
		Lenient:       c.st.lenient,
		Player:        c.st.player,
		Reason:        c.st.reason,
		ConnectedAt:   c.connectedAt,
	}
	if c.st.denial != nil {
		s.Denial = c.st.denial.Reason
	}
	t := c.transport
	c.mu.Unlock()

	if t != nil {
		s.Transport = t.Stats()
	}
	return s
}

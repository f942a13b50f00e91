package connector

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxel-agent/agentlink/internal/events"
)

// SupervisorOptions tunes a Supervisor.
type SupervisorOptions struct {
	Connect ConnectOptions

	// ReconnectDelay is the pause between sessions. Zero disables
	// reconnecting: Run returns when the first session ends.
	ReconnectDelay time.Duration
}

// Supervisor owns the current Connection and replaces it after a session
// ends. It implements Commander by delegating to the live Connection.
type Supervisor struct {
	cfg      Config
	eventBus *events.EventBus
	opts     SupervisorOptions
	logger   zerolog.Logger

	mu       sync.Mutex
	current  *Connection
	stopped  bool
	sessions int
}

var _ Commander = (*Supervisor)(nil)

// NewSupervisor creates a Supervisor. Nothing connects until Run.
func NewSupervisor(cfg Config, eventBus *events.EventBus, opts SupervisorOptions) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		eventBus: eventBus,
		opts:     opts,
		logger:   log.With().Str("component", "supervisor").Logger(),
	}
}

// Run connects and keeps a session alive until ctx is cancelled,
// Disconnect is called, or reconnecting is off or pointless. It returns nil
// on a requested stop and the last session error otherwise.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		conn, ok := s.next()
		if !ok {
			return nil
		}

		err := conn.Connect(ctx, s.opts.Connect)
		if err == nil && s.isStopped() {
			// Disconnect raced with a Connect that had not started yet.
			conn.Disconnect()
			return nil
		}
		if err == nil {
			s.logger.Info().Str("state", conn.State().String()).Msg("session established")
			select {
			case <-ctx.Done():
				conn.Disconnect()
				return nil
			case <-conn.Done():
			}
			err = sessionEndError(conn)
		}

		if ctx.Err() != nil || s.isStopped() {
			return nil
		}

		var denied *DeniedError
		if errors.As(err, &denied) && !denied.Reconnect {
			s.logger.Error().Err(err).Msg("server refused the session, not reconnecting")
			return err
		}

		if s.opts.ReconnectDelay <= 0 {
			return err
		}

		s.logger.Warn().Err(err).Dur("delay", s.opts.ReconnectDelay).Msg("session ended, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.opts.ReconnectDelay):
		}
	}
}

// sessionEndError explains why an established session ended.
func sessionEndError(conn *Connection) error {
	if d := conn.Denial(); d != nil {
		return d
	}
	return ErrDisconnected
}

// next creates a fresh Connection unless the supervisor was stopped.
func (s *Supervisor) next() (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, false
	}
	s.current = NewConnection(s.cfg, s.eventBus)
	s.sessions++
	return s.current, true
}

func (s *Supervisor) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Current returns the live Connection, or nil before Run.
func (s *Supervisor) Current() *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Sessions returns how many connections Run has started.
func (s *Supervisor) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// Disconnect ends the current session and stops reconnecting.
func (s *Supervisor) Disconnect() error {
	s.mu.Lock()
	s.stopped = true
	conn := s.current
	s.mu.Unlock()

	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}

// SendChatMessage implements Commander.
func (s *Supervisor) SendChatMessage(text string) error {
	conn := s.Current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.SendChatMessage(text)
}

// MoveTo implements Commander.
func (s *Supervisor) MoveTo(x, y, z float32, opts ...LookOption) error {
	conn := s.Current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.MoveTo(x, y, z, opts...)
}

// DigBlock implements Commander.
func (s *Supervisor) DigBlock(x, y, z int32) error {
	conn := s.Current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.DigBlock(x, y, z)
}

// PlaceBlock implements Commander.
func (s *Supervisor) PlaceBlock(x, y, z int32, item uint16) error {
	conn := s.Current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.PlaceBlock(x, y, z, item)
}

// Player implements Commander.
func (s *Supervisor) Player() PlayerState {
	if conn := s.Current(); conn != nil {
		return conn.Player()
	}
	return PlayerState{}
}

// Status implements Commander.
func (s *Supervisor) Status() Status {
	if conn := s.Current(); conn != nil {
		return conn.Status()
	}
	return Status{Server: net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)), State: Disconnected}
}

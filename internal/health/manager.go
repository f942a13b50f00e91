// Package health runs periodic checks on the agent: a status log line,
// a heartbeat event for the MQTT bridge, and a stalled-link warning.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxel-agent/agentlink/internal/connector"
	"github.com/voxel-agent/agentlink/internal/events"
	"github.com/voxel-agent/agentlink/internal/util"
)

// StatusSource reports the connection status.
type StatusSource interface {
	Status() connector.Status
}

// Intervals controls how often each check runs. A zero interval disables it.
type Intervals struct {
	StatusLog time.Duration
	Heartbeat time.Duration
	Idle      time.Duration

	// IdleAfter is how long a ready link may stay silent before a warning.
	IdleAfter time.Duration
}

// DefaultIntervals returns the intervals used by the agent.
func DefaultIntervals() Intervals {
	return Intervals{
		StatusLog: time.Minute,
		Heartbeat: 30 * time.Second,
		Idle:      15 * time.Second,
		IdleAfter: 2 * time.Minute,
	}
}

// Manager runs periodic health checks.
type Manager struct {
	source    StatusSource
	eventBus  *events.EventBus
	intervals Intervals
	logger    zerolog.Logger

	// usage is swapped in tests.
	usage func() (*util.ProcessUsage, error)
	now   func() time.Time
}

// NewManager creates a new health check manager. eventBus may be nil.
func NewManager(source StatusSource, eventBus *events.EventBus, intervals Intervals) *Manager {
	return &Manager{
		source:    source,
		eventBus:  eventBus,
		intervals: intervals,
		logger:    log.With().Str("component", "health").Logger(),
		usage:     util.GetProcessUsage,
		now:       time.Now,
	}
}

// Start launches all health check goroutines and blocks until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	checks := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"status_log", m.intervals.StatusLog, m.logStatus},
		{"heartbeat", m.intervals.Heartbeat, m.heartbeat},
		{"idle_link", m.intervals.Idle, m.checkIdle},
	}

	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++

		check := check
		go func() {
			ticker := time.NewTicker(check.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	m.logger.Info().Int("checks", started).Msg("health check manager started")

	<-ctx.Done()
	m.logger.Info().Msg("health check manager stopped")
}

// logStatus writes one line summarizing the link.
func (m *Manager) logStatus(ctx context.Context) {
	st := m.source.Status()
	m.logger.Info().
		Str("state", st.State.String()).
		Uint16("peer_id", st.PeerID).
		Bool("authenticated", st.Authenticated).
		Bool("lenient", st.Lenient).
		Uint64("datagrams_in", st.Transport.DatagramsIn).
		Uint64("datagrams_out", st.Transport.DatagramsOut).
		Uint64("duplicates", st.Transport.Tracker.Duplicates).
		Uint64("malformed", st.Transport.Malformed).
		Msg("link status")
}

// heartbeat publishes a snapshot on the event bus.
func (m *Manager) heartbeat(ctx context.Context) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Emit(ctx, events.Event{
		Type:    events.EventHeartbeat,
		Source:  "health",
		Payload: m.snapshot(),
	})
}

func (m *Manager) snapshot() events.HeartbeatPayload {
	st := m.source.Status()
	hb := events.HeartbeatPayload{
		State:         st.State.String(),
		PeerID:        st.PeerID,
		Authenticated: st.Authenticated,
		DatagramsIn:   st.Transport.DatagramsIn,
		DatagramsOut:  st.Transport.DatagramsOut,
		Duplicates:    st.Transport.Tracker.Duplicates,
	}
	if usage, err := m.usage(); err == nil {
		hb.CPUPercent = usage.CPUPercent
		hb.RSSMB = usage.RSSMB
		hb.Goroutines = usage.Goroutines
	} else {
		m.logger.Debug().Err(err).Msg("process usage unavailable")
	}
	return hb
}

// checkIdle warns when a ready link has received nothing for too long.
func (m *Manager) checkIdle(ctx context.Context) {
	if m.idle() {
		m.logger.Warn().
			Dur("silent_for", m.now().Sub(m.source.Status().Transport.LastActivity)).
			Msg("no datagrams from server, link may be stalled")
	}
}

func (m *Manager) idle() bool {
	st := m.source.Status()
	if st.State != connector.Ready || st.Transport.LastActivity.IsZero() || m.intervals.IdleAfter <= 0 {
		return false
	}
	return m.now().Sub(st.Transport.LastActivity) > m.intervals.IdleAfter
}

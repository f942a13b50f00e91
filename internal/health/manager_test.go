package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxel-agent/agentlink/internal/connector"
	"github.com/voxel-agent/agentlink/internal/events"
	"github.com/voxel-agent/agentlink/internal/network"
	"github.com/voxel-agent/agentlink/internal/util"
)

type staticSource struct {
	status connector.Status
}

func (s staticSource) Status() connector.Status { return s.status }

func TestManager_Idle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		state connector.State
		last  time.Time
		want  bool
	}{
		{"ready and silent", connector.Ready, now.Add(-3 * time.Minute), true},
		{"ready and recent", connector.Ready, now.Add(-10 * time.Second), false},
		{"not ready", connector.AwaitingAuth, now.Add(-time.Hour), false},
		{"no traffic yet", connector.Ready, time.Time{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := staticSource{connector.Status{
				State:     tc.state,
				Transport: network.TransportStats{LastActivity: tc.last},
			}}
			m := NewManager(src, nil, DefaultIntervals())
			m.now = func() time.Time { return now }
			if got := m.idle(); got != tc.want {
				t.Fatalf("idle = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestManager_HeartbeatEmitsSnapshot(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()
	ch, cancel := bus.Listen(4)
	defer cancel()

	src := staticSource{connector.Status{
		State:         connector.Ready,
		PeerID:        7,
		Authenticated: true,
		Transport: network.TransportStats{
			DatagramsIn:  10,
			DatagramsOut: 4,
			Tracker:      network.TrackerStats{Duplicates: 2},
		},
	}}
	m := NewManager(src, bus, DefaultIntervals())
	m.usage = func() (*util.ProcessUsage, error) {
		return &util.ProcessUsage{CPUPercent: 1.5, RSSMB: 20, Goroutines: 9}, nil
	}

	m.heartbeat(context.Background())

	select {
	case ev := <-ch:
		if ev.Type != events.EventHeartbeat {
			t.Fatalf("event type = %s", ev.Type)
		}
		hb := ev.Payload.(events.HeartbeatPayload)
		if hb.State != "ready" || hb.PeerID != 7 || hb.DatagramsIn != 10 || hb.Duplicates != 2 || hb.RSSMB != 20 {
			t.Fatalf("heartbeat = %+v", hb)
		}
	case <-time.After(time.Second):
		t.Fatalf("no heartbeat event")
	}
}

func TestManager_SnapshotWithoutUsage(t *testing.T) {
	m := NewManager(staticSource{connector.Status{State: connector.Disconnected}}, nil, DefaultIntervals())
	m.usage = func() (*util.ProcessUsage, error) { return nil, errors.New("unsupported") }

	hb := m.snapshot()
	if hb.State != "disconnected" || hb.Goroutines != 0 {
		t.Fatalf("snapshot = %+v", hb)
	}
}

func TestManager_StartStopsOnCancel(t *testing.T) {
	m := NewManager(staticSource{}, nil, Intervals{StatusLog: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Start did not return after cancel")
	}
}

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/voxel-agent/agentlink/internal/connector"
	"github.com/voxel-agent/agentlink/internal/db"
	"github.com/voxel-agent/agentlink/internal/events"
)

type stubCommander struct {
	err    error
	chat   []string
	player connector.PlayerState
	dug    [][3]int32
	placed []uint16
	closed bool
}

func (s *stubCommander) SendChatMessage(text string) error {
	if s.err != nil {
		return s.err
	}
	s.chat = append(s.chat, text)
	return nil
}

func (s *stubCommander) MoveTo(x, y, z float32, opts ...connector.LookOption) error {
	if s.err != nil {
		return s.err
	}
	p := connector.PlayerState{Pos: [3]float32{x, y, z}}
	for _, o := range opts {
		o(&p)
	}
	s.player = p
	return nil
}

func (s *stubCommander) DigBlock(x, y, z int32) error {
	s.dug = append(s.dug, [3]int32{x, y, z})
	return s.err
}

func (s *stubCommander) PlaceBlock(x, y, z int32, item uint16) error {
	s.placed = append(s.placed, item)
	return s.err
}

func (s *stubCommander) Player() connector.PlayerState { return s.player }

func (s *stubCommander) Status() connector.Status {
	return connector.Status{Server: "127.0.0.1:30000", State: connector.Ready, PeerID: 7, Authenticated: true, Denial: ""}
}

func (s *stubCommander) Disconnect() error {
	s.closed = true
	return nil
}

type stubJournal struct{}

func (stubJournal) RecentChat(limit int) ([]db.ChatRecord, error) {
	now := time.Now()
	return []db.ChatRecord{
		{ID: 2, Direction: events.ChatIncoming, Sender: "bob", Message: "second", CreatedAt: now},
		{ID: 1, Direction: events.ChatOutgoing, Sender: "agent", Message: "first", CreatedAt: now.Add(-time.Second)},
	}, nil
}

func (stubJournal) Sessions(limit int) ([]db.Session, error) {
	return []db.Session{{ID: 1, Server: "srv", StartedAt: time.Now(), PeerID: 7, Authenticated: true}}, nil
}

func runScript(t *testing.T, cmd connector.Commander, journal Journal, bus *events.EventBus, script string) string {
	t.Helper()
	var out bytes.Buffer
	c := NewCLI(cmd, journal, bus, &out)
	done := make(chan struct{})
	go func() {
		c.Start(context.Background(), strings.NewReader(script))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("console did not finish")
	}
	return out.String()
}

func TestCLI_Commands(t *testing.T) {
	cmd := &stubCommander{}
	out := runScript(t, cmd, stubJournal{}, nil, strings.Join([]string{
		"say hello there",
		"move 1 2.5 -3 10 90",
		"dig 4 5 6",
		"place 1 2 3 9",
		"status",
		"disconnect",
	}, "\n"))

	if len(cmd.chat) != 1 || cmd.chat[0] != "hello there" {
		t.Fatalf("chat = %v", cmd.chat)
	}
	if cmd.player.Pos != [3]float32{1, 2.5, -3} || cmd.player.Pitch != 10 || cmd.player.Yaw != 90 {
		t.Fatalf("player = %+v", cmd.player)
	}
	if len(cmd.dug) != 1 || cmd.dug[0] != [3]int32{4, 5, 6} {
		t.Fatalf("dug = %v", cmd.dug)
	}
	if len(cmd.placed) != 1 || cmd.placed[0] != 9 {
		t.Fatalf("placed = %v", cmd.placed)
	}
	if !cmd.closed {
		t.Fatalf("disconnect not called")
	}
	if !strings.Contains(out, "Sent: hello there") {
		t.Fatalf("chat confirmation missing:\n%s", out)
	}
	if !strings.Contains(out, "ready") || !strings.Contains(out, "127.0.0.1:30000") {
		t.Fatalf("status table missing fields:\n%s", out)
	}
}

func TestCLI_UsageErrors(t *testing.T) {
	cmd := &stubCommander{}
	out := runScript(t, cmd, nil, nil, strings.Join([]string{
		"say",
		"move 1 2",
		"dig a b c",
		"place 1 2 3 99999",
		"history",
		"bogus",
	}, "\n"))

	for _, want := range []string{
		"usage: say <text>",
		"usage: move x y z [pitch yaw]",
		"invalid coordinate: a",
		"invalid item: 99999",
		"journal is disabled",
		"Unknown command: 'bogus'",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if len(cmd.dug) != 0 || len(cmd.placed) != 0 {
		t.Fatalf("invalid commands reached the commander")
	}
}

func TestCLI_CommanderError(t *testing.T) {
	cmd := &stubCommander{err: connector.ErrNotConnected}
	out := runScript(t, cmd, nil, nil, "say hi")
	if !strings.Contains(out, "Error: not connected") {
		t.Fatalf("output = %s", out)
	}
}

func TestCLI_HistoryOldestFirst(t *testing.T) {
	out := runScript(t, &stubCommander{}, stubJournal{}, nil, "history 5\nsessions")
	first := strings.Index(out, "first")
	second := strings.Index(out, "second")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("history order wrong:\n%s", out)
	}
	if !strings.Contains(out, "srv") {
		t.Fatalf("sessions table missing:\n%s", out)
	}
}

func TestCLI_QuitEmitsShutdown(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()
	ch, cancel := bus.Listen(4)
	defer cancel()

	cmd := &stubCommander{}
	runScript(t, cmd, nil, bus, "quit\nsay never")

	select {
	case ev := <-ch:
		if ev.Type != events.EventShutdown {
			t.Fatalf("event = %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("no shutdown event")
	}
	if len(cmd.chat) != 0 {
		t.Fatalf("commands after quit were executed")
	}
}

func TestParseLimit(t *testing.T) {
	if n, err := parseLimit(nil, 20); err != nil || n != 20 {
		t.Fatalf("default = %d, %v", n, err)
	}
	if _, err := parseLimit([]string{"0"}, 20); err == nil {
		t.Fatalf("zero should be rejected")
	}
	if _, err := parseLimit([]string{"x"}, 20); err == nil {
		t.Fatalf("non-number should be rejected")
	}
}

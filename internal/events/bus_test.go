package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventBus_EmitSyncRunsHandlers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls atomic.Int32
	bus.Subscribe(EventChatMessage, "a", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})
	bus.Subscribe(EventChatMessage, "b", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return errors.New("boom")
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventChatMessage})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("EmitSync error = %v, want boom", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls.Load())
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	bus.Subscribe(EventTimeOfDay, "x", func(ctx context.Context, e Event) error { return nil })
	bus.Unsubscribe(EventTimeOfDay, "x")

	if n := bus.HandlerCount(EventTimeOfDay); n != 0 {
		t.Fatalf("expected no handlers, got %d", n)
	}
}

func TestEventBus_PanickingHandlerIsRecovered(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	bus.Subscribe(EventShutdown, "panics", func(ctx context.Context, e Event) error {
		panic("handler bug")
	})

	if err := bus.EmitSync(context.Background(), Event{Type: EventShutdown}); err != nil {
		t.Fatalf("EmitSync returned %v", err)
	}
}

func TestEventBus_ListenReceivesEveryType(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	ch, cancel := bus.Listen(4)
	defer cancel()

	bus.Emit(context.Background(), Event{Type: EventTimeOfDay, Source: "test"})
	bus.EmitSync(context.Background(), Event{Type: EventBlockData, Source: "test"})

	for _, want := range []EventType{EventTimeOfDay, EventBlockData} {
		select {
		case e := <-ch:
			if e.Type != want {
				t.Fatalf("got %s, want %s", e.Type, want)
			}
			if e.Time.IsZero() {
				t.Fatalf("event time was not stamped")
			}
		case <-time.After(time.Second):
			t.Fatalf("listener did not receive %s", want)
		}
	}
}

func TestEventBus_ListenCancelAndStop(t *testing.T) {
	bus := NewEventBus()

	ch, cancel := bus.Listen(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}

	ch2, cancel2 := bus.Listen(1)
	bus.Stop()
	if _, ok := <-ch2; ok {
		t.Fatalf("channel should be closed after Stop")
	}
	cancel2()

	// Emitting after Stop is a no-op.
	bus.Emit(context.Background(), Event{Type: EventShutdown})
}

func TestEventBus_FullListenerDoesNotBlock(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	_, cancel := bus.Listen(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Emit(context.Background(), Event{Type: EventCommandSent})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Emit blocked on a full listener")
	}
}

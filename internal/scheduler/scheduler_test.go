package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingPruner struct {
	mu     sync.Mutex
	calls  int
	maxAge time.Duration
	err    error
}

func (p *countingPruner) Prune(maxAge time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.maxAge = maxAge
	return 3, p.err
}

func TestNextRunTime(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		name string
		at   string
		now  time.Time
		want time.Time
	}{
		{"later today", "04:00", time.Date(2026, 3, 1, 1, 0, 0, 0, loc), time.Date(2026, 3, 1, 4, 0, 0, 0, loc)},
		{"already passed", "04:00", time.Date(2026, 3, 1, 5, 0, 0, 0, loc), time.Date(2026, 3, 2, 4, 0, 0, 0, loc)},
		{"exactly now", "04:00", time.Date(2026, 3, 1, 4, 0, 0, 0, loc), time.Date(2026, 3, 2, 4, 0, 0, 0, loc)},
		{"custom minute", "23:45", time.Date(2026, 3, 1, 23, 0, 0, 0, loc), time.Date(2026, 3, 1, 23, 45, 0, 0, loc)},
		{"garbage falls back", "soon", time.Date(2026, 3, 1, 1, 0, 0, 0, loc), time.Date(2026, 3, 1, 4, 0, 0, 0, loc)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewScheduler(&countingPruner{}, 7, tc.at)
			s.now = func() time.Time { return tc.now }
			if got := s.nextRunTime(); !got.Equal(tc.want) {
				t.Fatalf("nextRunTime = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestStart_PrunesOnStartup(t *testing.T) {
	p := &countingPruner{}
	s := NewScheduler(p, 0, "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		calls := p.calls
		p.mu.Unlock()
		if calls > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls != 1 {
		t.Fatalf("prune calls = %d, want 1", p.calls)
	}
	if p.maxAge != 24*time.Hour {
		t.Fatalf("retention = %s, want clamped to 24h", p.maxAge)
	}
}

func TestRunPrune_ErrorIsLogged(t *testing.T) {
	p := &countingPruner{err: errors.New("disk full")}
	s := NewScheduler(p, 14, DefaultPruneTime)
	s.runPrune()
	if p.calls != 1 || p.maxAge != 14*24*time.Hour {
		t.Fatalf("pruner = %+v", p)
	}
}

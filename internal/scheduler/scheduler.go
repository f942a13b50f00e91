// Package scheduler runs daily background tasks for agentlink, currently
// pruning the session journal.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPruneTime is the local time of day the journal is pruned.
const DefaultPruneTime = "04:00"

// Pruner removes journal rows older than maxAge.
type Pruner interface {
	Prune(maxAge time.Duration) (int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	pruner    Pruner
	retention time.Duration
	pruneAt   string
	logger    zerolog.Logger

	now func() time.Time
}

// NewScheduler creates a new task scheduler. retentionDays below 1 is
// treated as 1.
func NewScheduler(pruner Pruner, retentionDays int, pruneAt string) *Scheduler {
	if retentionDays < 1 {
		retentionDays = 1
	}
	if pruneAt == "" {
		pruneAt = DefaultPruneTime
	}
	return &Scheduler{
		pruner:    pruner,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		pruneAt:   pruneAt,
		logger:    log.With().Str("component", "scheduler").Logger(),
		now:       time.Now,
	}
}

// Start prunes once, then daily at the configured time, until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Str("prune_at", s.pruneAt).Dur("retention", s.retention).Msg("scheduler started")

	s.runPrune()

	for {
		nextRun := s.nextRunTime()
		sleepDuration := nextRun.Sub(s.now())
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		s.logger.Debug().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("journal prune scheduled")

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-time.After(sleepDuration):
			s.runPrune()
		}
	}
}

func (s *Scheduler) runPrune() {
	removed, err := s.pruner.Prune(s.retention)
	if err != nil {
		s.logger.Warn().Err(err).Msg("journal prune failed")
		return
	}
	s.logger.Info().Int64("removed", removed).Msg("journal prune completed")
}

// nextRunTime returns the next occurrence of the prune time of day.
func (s *Scheduler) nextRunTime() time.Time {
	parts := strings.Split(s.pruneAt, ":")

	hour, minute := 4, 0
	if len(parts) >= 2 {
		fmt.Sscanf(parts[0], "%d", &hour)
		fmt.Sscanf(parts[1], "%d", &minute)
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}

	return next
}

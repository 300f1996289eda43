// Package scheduler fires periodic syncs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/beekhof/mirror-agenda/internal/logging"
	"github.com/beekhof/mirror-agenda/internal/sync"
)

// DefaultSpec refreshes every ten minutes.
const DefaultSpec = "*/10 * * * *"

// Syncer is the part of the controller the scheduler drives.
type Syncer interface {
	Sync(ctx context.Context, trigger sync.Trigger) sync.Display
}

type Scheduler struct {
	cron   *cron.Cron
	spec   string
	syncer Syncer
	logger zerolog.Logger
}

// New creates a scheduler that runs spec (standard five-field cron or a
// descriptor such as "@every 5m") in loc. Overlapping runs are skipped.
func New(spec string, loc *time.Location, syncer Syncer, logger zerolog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.Local
	}
	logger = logging.Component(logger, "scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		spec:   spec,
		syncer: syncer,
		logger: logger,
	}
}

// Validate reports whether spec parses.
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return nil
}

// Start registers the refresh job and runs it until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.syncer.Sync(ctx, sync.TriggerPeriodic)
	}); err != nil {
		return fmt.Errorf("add refresh job: %w", err)
	}

	s.cron.Start()
	s.logger.Info().Str("spec", s.spec).Time("next", s.Next()).Msg("scheduler started")

	<-ctx.Done()
	return nil
}

// Stop halts the cron and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Next returns when the refresh job fires next, or the zero time when the
// scheduler is not running.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

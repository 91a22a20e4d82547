package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Runner performs one ingestion pass.
type Runner interface {
	Run(ctx context.Context) (RunReport, error)
}

// Scheduler repeats ingestion on a fixed interval from a single goroutine, so
// runs never overlap. Ticks that fire during a run are coalesced.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. A nil clock uses real time.
func NewScheduler(runner Runner, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		clock:    clock,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start runs ingestion immediately and then every interval until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduled ingestion started", "interval", s.interval)
	s.runOnce(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled ingestion stopping", "reason", ctx.Err())
			return
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.Run(ctx); err != nil {
		s.logger.Warn("scheduled ingestion run failed, retrying next interval", "error", err)
	}
}

// Package jobs runs the periodic maintenance tasks of a serving gateway.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Cleaner purges expired rate-limit windows and old usage entries.
type Cleaner interface {
	CleanupOldUsageLogs(ctx context.Context, retentionDays int) (int64, error)
	CleanupOldRateLimitWindows(ctx context.Context) (int64, error)
}

// Config sets the job intervals.
type Config struct {
	WindowInterval time.Duration
	UsageInterval  time.Duration
	RetentionDays  int
}

// Scheduler wraps a gocron scheduler with the two cleanup jobs.
type Scheduler struct {
	cleaner Cleaner
	cfg     Config
	logger  *logrus.Logger
	sched   gocron.Scheduler
}

// New validates cfg and creates an idle scheduler. Call Run to start it.
func New(cleaner Cleaner, cfg Config, logger *logrus.Logger) (*Scheduler, error) {
	if cfg.WindowInterval <= 0 || cfg.UsageInterval <= 0 {
		return nil, errors.New("jobs: intervals must be positive")
	}
	if cfg.RetentionDays < 1 {
		return nil, errors.New("jobs: retention days must be at least 1")
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("jobs: create scheduler: %w", err)
	}
	return &Scheduler{cleaner: cleaner, cfg: cfg, logger: logger, sched: sched}, nil
}

// Run registers the jobs, starts them immediately and then on their
// intervals, and blocks until ctx is cancelled. Cleanups in flight see the
// cancellation through ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) (int64, error)
	}{
		{"rate-limit-windows", s.cfg.WindowInterval, s.cleaner.CleanupOldRateLimitWindows},
		{"usage-logs", s.cfg.UsageInterval, func(ctx context.Context) (int64, error) {
			return s.cleaner.CleanupOldUsageLogs(ctx, s.cfg.RetentionDays)
		}},
	}
	for _, j := range jobs {
		_, err := s.sched.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(func() { s.runJob(ctx, j.name, j.run) }),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return fmt.Errorf("jobs: register %s: %w", j.name, err)
		}
	}

	s.sched.Start()
	s.logger.WithFields(logrus.Fields{
		"window_interval": s.cfg.WindowInterval.String(),
		"usage_interval":  s.cfg.UsageInterval.String(),
		"retention_days":  s.cfg.RetentionDays,
	}).Info("maintenance scheduler started")

	<-ctx.Done()

	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("jobs: shutdown: %w", err)
	}
	s.logger.Info("maintenance scheduler stopped")
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, name string, run func(context.Context) (int64, error)) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	n, err := run(ctx)
	entry := s.logger.WithFields(logrus.Fields{
		"job":         name,
		"deleted":     n,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("maintenance job failed")
		return
	}
	entry.Debug("maintenance job finished")
}

// RunOnce runs both cleanups a single time, as the cleanup command does.
func RunOnce(ctx context.Context, cleaner Cleaner, retentionDays int) (windows, usage int64, err error) {
	if windows, err = cleaner.CleanupOldRateLimitWindows(ctx); err != nil {
		return 0, 0, err
	}
	if usage, err = cleaner.CleanupOldUsageLogs(ctx, retentionDays); err != nil {
		return windows, 0, err
	}
	return windows, usage, nil
}

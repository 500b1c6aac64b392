package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"udf_backend_project/config"
)

// HistoryPruner removes cached bars fetched before a cutoff.
type HistoryPruner interface {
	PruneBars(ctx context.Context, before time.Time) (int64, error)
}

// WindowCleaner drops expired rate limiter state.
type WindowCleaner interface {
	Cleanup()
}

const limiterCleanupEvery = 10 * time.Minute

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron    *gocron.Scheduler
	pruner  HistoryPruner
	limiter WindowCleaner
	cfg     config.HistoryConfig
	log     *zap.Logger
	now     func() time.Time
}

// NewScheduler creates a scheduler running in loc. limiter may be nil.
func NewScheduler(pruner HistoryPruner, limiter WindowCleaner, cfg config.HistoryConfig, loc *time.Location, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:    gocron.NewScheduler(loc),
		pruner:  pruner,
		limiter: limiter,
		cfg:     cfg,
		log:     log.Named("scheduler"),
		now:     time.Now,
	}
}

// Start registers every job and starts the scheduler in the background.
func (s *Scheduler) Start() error {
	if s.cfg.CacheEnabled && s.cfg.Retention > 0 {
		// Prune cached history daily
		if _, err := s.cron.Every(1).Day().At(s.cfg.PruneAt).SingletonMode().Do(s.pruneHistory); err != nil {
			return fmt.Errorf("schedule history prune at %q: %w", s.cfg.PruneAt, err)
		}
	}

	if s.limiter != nil {
		if _, err := s.cron.Every(limiterCleanupEvery).SingletonMode().Do(s.limiter.Cleanup); err != nil {
			return fmt.Errorf("schedule rate limiter cleanup: %w", err)
		}
	}

	s.cron.StartAsync()
	s.log.Info("Scheduler started", zap.Int("jobs", len(s.cron.Jobs())))
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("Scheduler stopped")
}

// pruneHistory removes history bars and coverage older than the retention period
func (s *Scheduler) pruneHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.Retention)
	removed, err := s.pruner.PruneBars(ctx, cutoff)
	if err != nil {
		s.log.Error("History prune failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return
	}
	s.log.Info("History pruned", zap.Time("cutoff", cutoff), zap.Int64("rows", removed))
}

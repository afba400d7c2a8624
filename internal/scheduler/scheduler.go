// Package scheduler runs configured sync tasks on cron expressions until the
// process is stopped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/candlekeep/go-ohlcv-sync/internal/collector"
	"github.com/candlekeep/go-ohlcv-sync/internal/config"
	"github.com/candlekeep/go-ohlcv-sync/internal/models"
)

// Scheduler triggers orchestrator runs from cron.tasks entries. Cron
// expressions use six fields, seconds first.
type Scheduler struct {
	cron              *cron.Cron
	orchestrator      *collector.Orchestrator
	defaultTimeframes []models.Timeframe
	logger            *slog.Logger
}

// New builds a scheduler. defaultTimeframes is used for tasks that leave the
// timeframe empty.
func New(orchestrator *collector.Orchestrator, defaultTimeframes []models.Timeframe, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:              cron.New(cron.WithSeconds()),
		orchestrator:      orchestrator,
		defaultTimeframes: defaultTimeframes,
		logger:            logger,
	}
}

// Register adds every task to the cron runner. Invalid expressions fail fast.
func (s *Scheduler) Register(tasks []config.CronTask) error {
	for _, task := range tasks {
		task := task
		if _, err := s.cron.AddFunc(task.Cron, func() { s.run(task) }); err != nil {
			return fmt.Errorf("register task %q for %s: %w", task.Cron, task.Symbol, err)
		}
		s.logger.Info("task registered",
			"symbol", task.Symbol,
			"timeframe", task.Timeframe,
			"days", task.Days,
			"cron", task.Cron)
	}
	return nil
}

// Start begins executing registered tasks in background goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "tasks", len(s.cron.Entries()))
}

// Stop halts scheduling and waits for in-flight task runs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(task config.CronTask) {
	ctx := context.Background()
	start := time.Now().UTC().AddDate(0, 0, -task.Days)

	if task.Timeframe == "" {
		results, err := s.orchestrator.FetchAllTimeframes(ctx, task.Symbol, s.defaultTimeframes, start, time.Time{})
		if err != nil {
			s.logger.Error("scheduled run failed", "symbol", task.Symbol, "error", err)
			return
		}
		for tf, ok := range results {
			if !ok {
				s.logger.Warn("scheduled run left timeframe incomplete",
					"symbol", task.Symbol,
					"timeframe", tf)
			}
		}
		return
	}

	tf, err := models.ParseTimeframe(task.Timeframe)
	if err != nil {
		s.logger.Error("scheduled task has invalid timeframe",
			"symbol", task.Symbol,
			"timeframe", task.Timeframe,
			"error", err)
		return
	}
	ok, err := s.orchestrator.FetchAndStore(ctx, task.Symbol, tf, start, time.Time{})
	if err != nil {
		s.logger.Error("scheduled run failed",
			"symbol", task.Symbol,
			"timeframe", tf,
			"error", err)
		return
	}
	if !ok {
		s.logger.Warn("scheduled run found no data",
			"symbol", task.Symbol,
			"timeframe", tf)
	}
}

/**
 * @description
 * Cron scheduler for the daily returns job.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/axixfinance/accrual-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(engine *Engine, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		engine: engine,
		logger: logger,
		config: cfg,
	}
}

// Start registers the daily returns job and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.DailyReturnsSchedule, s.runDailyReturns); err != nil {
		s.logger.Error("failed to schedule daily returns job", "error", err)
	} else {
		s.logger.Info("scheduled daily returns job", "schedule", s.config.DailyReturnsSchedule)
	}

	s.cron.Start()
}

func (s *Scheduler) runDailyReturns() {
	// Zero asOf means "today" in UTC; cron fires shortly after midnight so the
	// run always credits the day it started in.
	if _, err := s.engine.RunDailyReturns(context.Background(), time.Time{}, SourceCron); err != nil {
		s.logger.Error("scheduled daily returns run failed", "error", err)
	}
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

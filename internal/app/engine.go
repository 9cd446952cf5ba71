/**
 * @description
 * The accrual engine: one run walks the eligible investments for a single UTC
 * day, credits each exactly once, and appends a job_runs audit row.
 *
 * Idempotence is not the engine's job. Re-running for the same day produces
 * zero new credits because the eligibility query excludes already-credited
 * rows and the database's per-day unique index stops anything that slips
 * through a concurrent-trigger race. The engine only has to treat that
 * conflict as a no-op.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/axixfinance/accrual-service/internal/domain"
	"github.com/axixfinance/accrual-service/internal/store"
)

// Trigger origins recorded on job_runs rows.
const (
	SourceCron   = "cron"
	SourceManual = "manual"
)

// Event routing keys published by the engine.
const (
	EventInvestmentCompleted = "investment.completed"
	EventRunFinished         = "accrual.run.finished"
)

// Repository defines the ledger operations the engine needs.
type Repository interface {
	ListEligibleInvestments(ctx context.Context, asOfUTCDay time.Time) ([]domain.Investment, error)
	RecordReturn(ctx context.Context, inv domain.Investment, amount decimal.Decimal, returnDate time.Time) (bool, error)
	CreateJobRun(ctx context.Context, run *domain.JobRun) error
	GetLastRun(ctx context.Context, jobName string) (*domain.JobRun, error)
	GetRecentRuns(ctx context.Context, jobName string, limit int) ([]domain.JobRun, error)
	HasSuccessfulRunSince(ctx context.Context, jobName string, since time.Time) (bool, error)
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Engine applies daily investment returns.
type Engine struct {
	repo      Repository
	publisher EventPublisher
	logger    *slog.Logger
	exchange  string
}

// NewEngine creates a new accrual engine.
func NewEngine(repo Repository, publisher EventPublisher, logger *slog.Logger, exchange string) *Engine {
	return &Engine{repo: repo, publisher: publisher, logger: logger, exchange: exchange}
}

// RunDailyReturns executes one accrual pass. asOf is normalized to UTC
// start-of-day; a zero value means the current UTC day. Per-row failures are
// logged and skipped; only a failure to fetch the eligible set marks the run
// as failed. The returned JobRun is also persisted to the audit log.
func (e *Engine) RunDailyReturns(ctx context.Context, asOf time.Time, source string) (*domain.JobRun, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	asOfDay := domain.UTCDay(asOf)

	run := &domain.JobRun{
		ID:           uuid.New(),
		JobName:      domain.JobName,
		StartedAt:    time.Now().UTC(),
		Source:       source,
		TotalApplied: decimal.Zero,
	}

	e.logger.Info("starting daily returns run", "as_of", asOfDay.Format("2006-01-02"), "source", source)

	investments, err := e.repo.ListEligibleInvestments(ctx, asOfDay)
	if err != nil {
		return e.finishRun(ctx, run, fmt.Errorf("fetch eligible investments: %w", err))
	}

	var skipped, alreadyCredited int
	for _, inv := range investments {
		if _, err := domain.PlanByName(inv.PlanName); err != nil {
			e.logger.Error("investment references unknown plan, skipping",
				"investment_id", inv.ID, "plan_name", inv.PlanName)
			skipped++
			continue
		}

		// Always the investment's own stored rate. A rate that has drifted
		// from the plan's nominal value is a data-quality issue for the
		// offline audit, not something to silently correct at credit time.
		amount := inv.DailyReturnAmount()

		completed, err := e.repo.RecordReturn(ctx, inv, amount, asOfDay)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyCredited) {
				// Expected outcome of a duplicate trigger racing this run.
				alreadyCredited++
				continue
			}
			e.logger.Error("failed to record return, skipping",
				"investment_id", inv.ID, "error", err)
			skipped++
			continue
		}

		run.ProcessedCount++
		run.TotalApplied = run.TotalApplied.Add(amount)

		if completed {
			run.CompletedCount++
			e.publish(ctx, EventInvestmentCompleted, map[string]interface{}{
				"investment_id": inv.ID,
				"user_id":       inv.UserID,
				"plan_name":     inv.PlanName,
				"total_earned":  inv.TotalEarned.Add(amount),
				"completed_on":  asOfDay.Format("2006-01-02"),
			})
		}
	}

	e.logger.Info("daily returns run finished",
		"processed", run.ProcessedCount,
		"completed", run.CompletedCount,
		"already_credited", alreadyCredited,
		"skipped", skipped,
		"total_applied", run.TotalApplied.StringFixed(2))

	return e.finishRun(ctx, run, nil)
}

// finishRun stamps and persists the audit row and publishes the run summary.
func (e *Engine) finishRun(ctx context.Context, run *domain.JobRun, runErr error) (*domain.JobRun, error) {
	run.FinishedAt = time.Now().UTC()
	run.Success = runErr == nil
	if runErr != nil {
		text := runErr.Error()
		run.ErrorText = &text
	}

	if err := e.repo.CreateJobRun(ctx, run); err != nil {
		e.logger.Error("failed to record job run", "error", err)
	}

	e.publish(ctx, EventRunFinished, run)

	if runErr != nil {
		e.logger.Error("daily returns run failed", "error", runErr)
		return run, runErr
	}
	return run, nil
}

// publish is best-effort; a broker outage never fails an accrual run.
func (e *Engine) publish(ctx context.Context, routingKey string, body interface{}) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, e.exchange, routingKey, body); err != nil {
		e.logger.Warn("failed to publish event", "routing_key", routingKey, "error", err)
	}
}

// Status summarizes the audit log for monitoring consumers.
type Status struct {
	LastRun    *domain.JobRun  `json:"last_run,omitempty"`
	RecentRuns []domain.JobRun `json:"recent_runs"`
	Stale      bool            `json:"stale"`
}

// GetStatus returns the last run, recent history, and whether the job is
// stale (no successful run within thresholdHours).
func (e *Engine) GetStatus(ctx context.Context, thresholdHours int, limit int) (*Status, error) {
	status := &Status{}

	last, err := e.repo.GetLastRun(ctx, domain.JobName)
	if err != nil && !errors.Is(err, store.ErrJobRunNotFound) {
		return nil, err
	}
	status.LastRun = last

	runs, err := e.repo.GetRecentRuns(ctx, domain.JobName, limit)
	if err != nil {
		return nil, err
	}
	status.RecentRuns = runs

	stale, err := e.IsStale(ctx, thresholdHours)
	if err != nil {
		return nil, err
	}
	status.Stale = stale

	return status, nil
}

// IsStale reports whether no successful run has finished within the
// threshold.
func (e *Engine) IsStale(ctx context.Context, thresholdHours int) (bool, error) {
	since := time.Now().UTC().Add(-time.Duration(thresholdHours) * time.Hour)
	ok, err := e.repo.HasSuccessfulRunSince(ctx, domain.JobName, since)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

/**
 * @description
 * Ledger domain models for the accrual service: investments, the append-only
 * daily return entries credited against them, and the job run audit records
 * written by the accrual engine.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Investment statuses. An investment is terminal once completed.
const (
	InvestmentStatusActive    = "active"
	InvestmentStatusCompleted = "completed"
)

// Investment is one user's position in a plan. Rate and duration are
// snapshotted from the plan at creation time; the engine always credits from
// the stored rate, never the current catalog value.
type Investment struct {
	ID                      uuid.UUID       `json:"id"`
	UserID                  uuid.UUID       `json:"user_id"`
	PlanName                string          `json:"plan_name"`
	PrincipalAmount         decimal.Decimal `json:"principal_amount"`
	DailyProfitPercent      decimal.Decimal `json:"daily_profit_percent"`
	DurationDays            int             `json:"duration_days"`
	StartDate               time.Time       `json:"start_date"`
	FirstProfitEligibleDate time.Time       `json:"first_profit_eligible_date"`
	LastCreditAppliedAt     *time.Time      `json:"last_credit_applied_at,omitempty"`
	DaysElapsed             int             `json:"days_elapsed"`
	TotalEarned             decimal.Decimal `json:"total_earned"`
	Status                  string          `json:"status"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// DailyReturnAmount computes one day's credit from the stored rate, rounded
// half-up to currency precision.
func (i Investment) DailyReturnAmount() decimal.Decimal {
	return i.PrincipalAmount.
		Mul(i.DailyProfitPercent).
		Div(decimal.NewFromInt(100)).
		Round(2)
}

// Return is one day's credited profit for an investment. Rows are created
// only by the accrual engine and never updated; reconciliation tooling may
// delete a row to correct a duplicate.
type Return struct {
	ID           uuid.UUID       `json:"id"`
	InvestmentID uuid.UUID       `json:"investment_id"`
	UserID       uuid.UUID       `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	ReturnDate   time.Time       `json:"return_date"` // UTC start-of-day
	CreatedAt    time.Time       `json:"created_at"`
}

// JobName identifies the daily accrual job in the job_runs audit log.
const JobName = "daily-investments"

// JobRun is an append-only audit record of one engine execution.
type JobRun struct {
	ID             uuid.UUID       `json:"id"`
	JobName        string          `json:"job_name"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Success        bool            `json:"success"`
	Source         string          `json:"source"`
	ProcessedCount int             `json:"processed_count"`
	CompletedCount int             `json:"completed_count"`
	TotalApplied   decimal.Decimal `json:"total_applied"`
	ErrorText      *string         `json:"error_text,omitempty"`
}

// UTCDay truncates a timestamp to UTC start-of-day. All day-granular
// eligibility comparisons go through this; comparing wall-clock instants is
// how duplicate and skipped credits happen.
func UTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SameUTCDay reports whether two timestamps fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	return UTCDay(a).Equal(UTCDay(b))
}

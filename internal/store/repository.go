/**
 * @description
 * Data access layer for the accrual service. Contains the SQL for the
 * investment ledger: eligibility selection, the atomic credit path, and the
 * reconciliation primitives that correct ledger drift.
 *
 * The per-day uniqueness of credits is enforced by the database index
 * idx_investment_returns_unique_per_day (investment_id, return_date), not by
 * application logic, so overlapping job runs race to exactly one insert.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/axixfinance/accrual-service/internal/domain"
)

var (
	ErrAlreadyCredited    = errors.New("return already credited for this day")
	ErrInvestmentNotFound = errors.New("investment not found")
	ErrReturnNotFound     = errors.New("return not found")
)

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// Repository handles database operations for the accrual service.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const investmentColumns = `
	id, user_id, plan_name, principal_amount::text, daily_profit_percent::text,
	duration_days, start_date, first_profit_eligible_date, last_credit_applied_at,
	days_elapsed, total_earned::text, status, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvestment(row rowScanner) (domain.Investment, error) {
	var (
		inv       domain.Investment
		principal string
		rate      string
		earned    string
	)
	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.PlanName, &principal, &rate,
		&inv.DurationDays, &inv.StartDate, &inv.FirstProfitEligibleDate, &inv.LastCreditAppliedAt,
		&inv.DaysElapsed, &earned, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return domain.Investment{}, err
	}
	if inv.PrincipalAmount, err = decimal.NewFromString(principal); err != nil {
		return domain.Investment{}, fmt.Errorf("invalid principal amount: %w", err)
	}
	if inv.DailyProfitPercent, err = decimal.NewFromString(rate); err != nil {
		return domain.Investment{}, fmt.Errorf("invalid daily profit percent: %w", err)
	}
	if inv.TotalEarned, err = decimal.NewFromString(earned); err != nil {
		return domain.Investment{}, fmt.Errorf("invalid total earned: %w", err)
	}
	return inv, nil
}

// ListEligibleInvestments fetches active investments due for a credit on the
// given UTC day. The comparison is strictly day-granular: last_credit_applied_at
// stores UTC start-of-day values and is compared against the normalized asOf
// day, never against a wall-clock instant.
func (r *Repository) ListEligibleInvestments(ctx context.Context, asOfUTCDay time.Time) ([]domain.Investment, error) {
	asOf := domain.UTCDay(asOfUTCDay)
	query := `
        SELECT ` + investmentColumns + `
        FROM investments
        WHERE status = 'active'
          AND days_elapsed < duration_days
          AND first_profit_eligible_date <= $1
          AND (last_credit_applied_at IS NULL OR last_credit_applied_at < $1)
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var investments []domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

// GetInvestment fetches a single investment by id.
func (r *Repository) GetInvestment(ctx context.Context, id uuid.UUID) (*domain.Investment, error) {
	query := `SELECT ` + investmentColumns + ` FROM investments WHERE id = $1`
	inv, err := scanInvestment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvestmentNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// ListActiveInvestments fetches every active investment, used by the offline
// rate-drift audit.
func (r *Repository) ListActiveInvestments(ctx context.Context) ([]domain.Investment, error) {
	query := `SELECT ` + investmentColumns + ` FROM investments WHERE status = 'active' ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var investments []domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

// RecordReturn inserts one day's return and advances the parent investment's
// counters in a single transaction. A unique-index conflict on
// (investment_id, return_date) means a concurrent run already credited this
// day; it surfaces as ErrAlreadyCredited with no state change. Returns whether
// this credit completed the investment.
func (r *Repository) RecordReturn(ctx context.Context, inv domain.Investment, amount decimal.Decimal, returnDate time.Time) (bool, error) {
	day := domain.UTCDay(returnDate)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	insert := `
        INSERT INTO investment_returns (id, investment_id, user_id, amount, return_date)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := tx.Exec(ctx, insert, uuid.New(), inv.ID, inv.UserID, amount.StringFixed(2), day); err != nil {
		if isUniqueViolation(err) {
			return false, ErrAlreadyCredited
		}
		return false, err
	}

	update := `
        UPDATE investments
        SET total_earned = total_earned + $1,
            days_elapsed = days_elapsed + 1,
            last_credit_applied_at = $2,
            status = CASE WHEN days_elapsed + 1 >= duration_days THEN 'completed' ELSE status END,
            updated_at = NOW()
        WHERE id = $3
        RETURNING status
    `
	var status string
	if err := tx.QueryRow(ctx, update, amount.StringFixed(2), day, inv.ID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrInvestmentNotFound
		}
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return status == domain.InvestmentStatusCompleted, nil
}

// ListReturnsForInvestment fetches an investment's credit history, oldest
// first. The audit tooling checks these rows against total_earned and
// days_elapsed.
func (r *Repository) ListReturnsForInvestment(ctx context.Context, investmentID uuid.UUID) ([]domain.Return, error) {
	query := `
        SELECT id, investment_id, user_id, amount::text, return_date, created_at
        FROM investment_returns
        WHERE investment_id = $1
        ORDER BY return_date ASC
    `
	rows, err := r.db.Query(ctx, query, investmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var returns []domain.Return
	for rows.Next() {
		var (
			ret    domain.Return
			amount string
		)
		if err := rows.Scan(&ret.ID, &ret.InvestmentID, &ret.UserID, &amount, &ret.ReturnDate, &ret.CreatedAt); err != nil {
			return nil, err
		}
		if ret.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid return amount: %w", err)
		}
		returns = append(returns, ret)
	}
	return returns, rows.Err()
}

// DeleteReturnAndRecompute removes one return row and rewinds the parent
// investment's counters through the same transactional path the engine uses
// to advance them. last_credit_applied_at is recomputed from the surviving
// return rows, and a completed investment whose final credit is rolled back
// reverts to active.
func (r *Repository) DeleteReturnAndRecompute(ctx context.Context, returnID uuid.UUID) (*domain.Investment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var (
		investmentID uuid.UUID
		amountText   string
	)
	del := `
        DELETE FROM investment_returns
        WHERE id = $1
        RETURNING investment_id, amount::text
    `
	if err := tx.QueryRow(ctx, del, returnID).Scan(&investmentID, &amountText); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReturnNotFound
		}
		return nil, err
	}

	update := `
        UPDATE investments
        SET total_earned = total_earned - $1,
            days_elapsed = days_elapsed - 1,
            last_credit_applied_at = (
                SELECT MAX(return_date) FROM investment_returns WHERE investment_id = $2
            ),
            status = 'active',
            updated_at = NOW()
        WHERE id = $2
        RETURNING ` + investmentColumns + `
    `
	inv, err := scanInvestment(tx.QueryRow(ctx, update, amountText, investmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvestmentNotFound
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &inv, nil
}

// DuplicateReturn describes one (investment, day) pair with more than one
// return row. Should be impossible while the unique index is in place; the
// query exists so reconciliation tooling can prove that.
type DuplicateReturn struct {
	InvestmentID uuid.UUID `json:"investment_id"`
	ReturnDate   time.Time `json:"return_date"`
	Count        int       `json:"count"`
}

// FindDuplicateReturns lists days with more than one return for the same
// investment.
func (r *Repository) FindDuplicateReturns(ctx context.Context) ([]DuplicateReturn, error) {
	query := `
        SELECT investment_id, return_date, COUNT(*)
        FROM investment_returns
        GROUP BY investment_id, return_date
        HAVING COUNT(*) > 1
        ORDER BY return_date ASC
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dups []DuplicateReturn
	for rows.Next() {
		var d DuplicateReturn
		if err := rows.Scan(&d.InvestmentID, &d.ReturnDate, &d.Count); err != nil {
			return nil, err
		}
		dups = append(dups, d)
	}
	return dups, rows.Err()
}

/**
 * @description
 * Offline reconciliation helpers. These are thin callers of the same ledger
 * primitives the engine uses; they never hand-roll their own SQL against the
 * ledger. They run outside the scheduled window, coordinated operationally
 * with the cron job.
 */
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/axixfinance/accrual-service/internal/domain"
	"github.com/axixfinance/accrual-service/internal/store"
)

// ReconcilerRepository defines the ledger operations the reconciliation
// tooling needs.
type ReconcilerRepository interface {
	GetInvestment(ctx context.Context, id uuid.UUID) (*domain.Investment, error)
	ListReturnsForInvestment(ctx context.Context, investmentID uuid.UUID) ([]domain.Return, error)
	ListActiveInvestments(ctx context.Context) ([]domain.Investment, error)
	FindDuplicateReturns(ctx context.Context) ([]store.DuplicateReturn, error)
	DeleteReturnAndRecompute(ctx context.Context, returnID uuid.UUID) (*domain.Investment, error)
}

// Reconciler detects and corrects ledger drift.
type Reconciler struct {
	repo   ReconcilerRepository
	logger *slog.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(repo ReconcilerRepository, logger *slog.Logger) *Reconciler {
	return &Reconciler{repo: repo, logger: logger}
}

// GetInvestment fetches one investment for operator inspection.
func (r *Reconciler) GetInvestment(ctx context.Context, id uuid.UUID) (*domain.Investment, error) {
	return r.repo.GetInvestment(ctx, id)
}

// ListReturns fetches an investment's credit history, oldest first.
func (r *Reconciler) ListReturns(ctx context.Context, investmentID uuid.UUID) ([]domain.Return, error) {
	return r.repo.ListReturnsForInvestment(ctx, investmentID)
}

// RateDrift reports an active investment whose stored daily rate no longer
// matches its plan's nominal rate. Drift is surfaced, never auto-corrected:
// a locked-in rate that legitimately differs from the current plan definition
// looks identical to a historically corrupted one.
type RateDrift struct {
	InvestmentID uuid.UUID       `json:"investment_id"`
	PlanName     string          `json:"plan_name"`
	StoredRate   decimal.Decimal `json:"stored_rate"`
	PlanRate     decimal.Decimal `json:"plan_rate"`
}

// FindRateDrift compares every active investment's stored rate against the
// plan catalog. Investments referencing unknown plans are reported with a
// zero plan rate.
func (r *Reconciler) FindRateDrift(ctx context.Context) ([]RateDrift, error) {
	investments, err := r.repo.ListActiveInvestments(ctx)
	if err != nil {
		return nil, err
	}

	var drifts []RateDrift
	for _, inv := range investments {
		plan, err := domain.PlanByName(inv.PlanName)
		if err != nil {
			if errors.Is(err, domain.ErrPlanNotFound) {
				drifts = append(drifts, RateDrift{
					InvestmentID: inv.ID,
					PlanName:     inv.PlanName,
					StoredRate:   inv.DailyProfitPercent,
				})
				continue
			}
			return nil, err
		}
		if !inv.DailyProfitPercent.Equal(plan.DailyProfitPercent) {
			drifts = append(drifts, RateDrift{
				InvestmentID: inv.ID,
				PlanName:     inv.PlanName,
				StoredRate:   inv.DailyProfitPercent,
				PlanRate:     plan.DailyProfitPercent,
			})
		}
	}
	return drifts, nil
}

// FindDuplicateReturns lists (investment, day) pairs carrying more than one
// return row.
func (r *Reconciler) FindDuplicateReturns(ctx context.Context) ([]store.DuplicateReturn, error) {
	return r.repo.FindDuplicateReturns(ctx)
}

// RollbackReturn deletes one erroneous credit and rewinds the parent
// investment's counters through the ledger's transactional path. The
// investment becomes eligible again for the rolled-back day on the next run.
func (r *Reconciler) RollbackReturn(ctx context.Context, returnID uuid.UUID) (*domain.Investment, error) {
	inv, err := r.repo.DeleteReturnAndRecompute(ctx, returnID)
	if err != nil {
		return nil, err
	}
	r.logger.Info("rolled back return",
		"return_id", returnID,
		"investment_id", inv.ID,
		"days_elapsed", inv.DaysElapsed,
		"total_earned", inv.TotalEarned.StringFixed(2))
	return inv, nil
}

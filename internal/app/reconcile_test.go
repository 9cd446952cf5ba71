package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/axixfinance/accrual-service/internal/domain"
	"github.com/axixfinance/accrual-service/internal/store"
)

type reconcilerRepoStub struct {
	active      []domain.Investment
	duplicates  []store.DuplicateReturn
	rolledBack  []uuid.UUID
	rollbackTo  *domain.Investment
	rollbackErr error
}

func (s *reconcilerRepoStub) GetInvestment(ctx context.Context, id uuid.UUID) (*domain.Investment, error) {
	for i := range s.active {
		if s.active[i].ID == id {
			return &s.active[i], nil
		}
	}
	return nil, store.ErrInvestmentNotFound
}

func (s *reconcilerRepoStub) ListReturnsForInvestment(ctx context.Context, investmentID uuid.UUID) ([]domain.Return, error) {
	return nil, nil
}

func (s *reconcilerRepoStub) ListActiveInvestments(ctx context.Context) ([]domain.Investment, error) {
	return s.active, nil
}

func (s *reconcilerRepoStub) FindDuplicateReturns(ctx context.Context) ([]store.DuplicateReturn, error) {
	return s.duplicates, nil
}

func (s *reconcilerRepoStub) DeleteReturnAndRecompute(ctx context.Context, returnID uuid.UUID) (*domain.Investment, error) {
	if s.rollbackErr != nil {
		return nil, s.rollbackErr
	}
	s.rolledBack = append(s.rolledBack, returnID)
	return s.rollbackTo, nil
}

func newTestReconciler(repo ReconcilerRepository) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReconciler(repo, logger)
}

func TestFindRateDrift_DetectsMismatchedRate(t *testing.T) {
	drifted := domain.Investment{
		ID:                 uuid.New(),
		PlanName:           "Premium Plan",
		DailyProfitPercent: decimal.NewFromInt(5), // nominal is 3.5
	}
	clean := domain.Investment{
		ID:                 uuid.New(),
		PlanName:           "Premium Plan",
		DailyProfitPercent: decimal.NewFromFloat(3.5),
	}
	repo := &reconcilerRepoStub{active: []domain.Investment{drifted, clean}}
	reconciler := newTestReconciler(repo)

	drifts, err := reconciler.FindRateDrift(context.Background())
	if err != nil {
		t.Fatalf("FindRateDrift returned error: %v", err)
	}
	if len(drifts) != 1 {
		t.Fatalf("expected 1 drift, got %d", len(drifts))
	}
	if drifts[0].InvestmentID != drifted.ID {
		t.Fatalf("expected drift for %s, got %s", drifted.ID, drifts[0].InvestmentID)
	}
	if !drifts[0].PlanRate.Equal(decimal.NewFromFloat(3.5)) {
		t.Fatalf("expected nominal rate 3.5, got %s", drifts[0].PlanRate)
	}
}

func TestFindRateDrift_ReportsUnknownPlan(t *testing.T) {
	orphan := domain.Investment{
		ID:                 uuid.New(),
		PlanName:           "Retired Plan",
		DailyProfitPercent: decimal.NewFromInt(4),
	}
	repo := &reconcilerRepoStub{active: []domain.Investment{orphan}}
	reconciler := newTestReconciler(repo)

	drifts, err := reconciler.FindRateDrift(context.Background())
	if err != nil {
		t.Fatalf("FindRateDrift returned error: %v", err)
	}
	if len(drifts) != 1 {
		t.Fatalf("expected 1 drift for unknown plan, got %d", len(drifts))
	}
	if !drifts[0].PlanRate.IsZero() {
		t.Fatalf("expected zero plan rate for unknown plan, got %s", drifts[0].PlanRate)
	}
}

func TestRollbackReturn_DelegatesToLedger(t *testing.T) {
	lastCredit := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	corrected := &domain.Investment{
		ID:                  uuid.New(),
		DaysElapsed:         1,
		TotalEarned:         decimal.NewFromInt(35),
		LastCreditAppliedAt: &lastCredit,
		Status:              domain.InvestmentStatusActive,
	}
	repo := &reconcilerRepoStub{rollbackTo: corrected}
	reconciler := newTestReconciler(repo)

	returnID := uuid.New()
	inv, err := reconciler.RollbackReturn(context.Background(), returnID)
	if err != nil {
		t.Fatalf("RollbackReturn returned error: %v", err)
	}
	if inv.ID != corrected.ID {
		t.Fatalf("expected corrected investment back, got %s", inv.ID)
	}
	if len(repo.rolledBack) != 1 || repo.rolledBack[0] != returnID {
		t.Fatalf("expected delete for %s, got %v", returnID, repo.rolledBack)
	}
}

func TestRollbackReturn_PropagatesNotFound(t *testing.T) {
	repo := &reconcilerRepoStub{rollbackErr: store.ErrReturnNotFound}
	reconciler := newTestReconciler(repo)

	if _, err := reconciler.RollbackReturn(context.Background(), uuid.New()); err != store.ErrReturnNotFound {
		t.Fatalf("expected ErrReturnNotFound, got %v", err)
	}
}

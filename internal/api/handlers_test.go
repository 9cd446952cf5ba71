package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/axixfinance/accrual-service/internal/app"
	"github.com/axixfinance/accrual-service/internal/domain"
	"github.com/axixfinance/accrual-service/internal/store"
)

type apiRepoStub struct {
	eligible   []domain.Investment
	credited   map[string]bool
	jobRuns    []domain.JobRun
	hasSuccess bool
}

func newAPIRepoStub() *apiRepoStub {
	return &apiRepoStub{credited: make(map[string]bool)}
}

func (s *apiRepoStub) ListEligibleInvestments(ctx context.Context, asOf time.Time) ([]domain.Investment, error) {
	day := domain.UTCDay(asOf).Format("2006-01-02")
	var out []domain.Investment
	for _, inv := range s.eligible {
		if !s.credited[inv.ID.String()+"|"+day] {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *apiRepoStub) RecordReturn(ctx context.Context, inv domain.Investment, amount decimal.Decimal, returnDate time.Time) (bool, error) {
	key := inv.ID.String() + "|" + domain.UTCDay(returnDate).Format("2006-01-02")
	if s.credited[key] {
		return false, store.ErrAlreadyCredited
	}
	s.credited[key] = true
	return false, nil
}

func (s *apiRepoStub) CreateJobRun(ctx context.Context, run *domain.JobRun) error {
	s.jobRuns = append(s.jobRuns, *run)
	return nil
}

func (s *apiRepoStub) GetLastRun(ctx context.Context, jobName string) (*domain.JobRun, error) {
	if len(s.jobRuns) == 0 {
		return nil, store.ErrJobRunNotFound
	}
	last := s.jobRuns[len(s.jobRuns)-1]
	return &last, nil
}

func (s *apiRepoStub) GetRecentRuns(ctx context.Context, jobName string, limit int) ([]domain.JobRun, error) {
	return s.jobRuns, nil
}

func (s *apiRepoStub) HasSuccessfulRunSince(ctx context.Context, jobName string, since time.Time) (bool, error) {
	return s.hasSuccess, nil
}

func (s *apiRepoStub) GetInvestment(ctx context.Context, id uuid.UUID) (*domain.Investment, error) {
	for i := range s.eligible {
		if s.eligible[i].ID == id {
			return &s.eligible[i], nil
		}
	}
	return nil, store.ErrInvestmentNotFound
}

func (s *apiRepoStub) ListReturnsForInvestment(ctx context.Context, investmentID uuid.UUID) ([]domain.Return, error) {
	var out []domain.Return
	for key := range s.credited {
		parts := strings.SplitN(key, "|", 2)
		if parts[0] != investmentID.String() {
			continue
		}
		returnDate, _ := time.Parse("2006-01-02", parts[1])
		out = append(out, domain.Return{
			ID:           uuid.New(),
			InvestmentID: investmentID,
			ReturnDate:   returnDate,
		})
	}
	return out, nil
}

func (s *apiRepoStub) ListActiveInvestments(ctx context.Context) ([]domain.Investment, error) {
	return s.eligible, nil
}

func (s *apiRepoStub) FindDuplicateReturns(ctx context.Context) ([]store.DuplicateReturn, error) {
	return nil, nil
}

func (s *apiRepoStub) DeleteReturnAndRecompute(ctx context.Context, returnID uuid.UUID) (*domain.Investment, error) {
	return nil, store.ErrReturnNotFound
}

func newTestRouter(t *testing.T, repo *apiRepoStub) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := app.NewEngine(repo, nil, logger, "accrual.events")
	reconciler := app.NewReconciler(repo, logger)
	handler := NewHandler(engine, reconciler, logger, 36)
	return NewRouter(handler, "test-key")
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("X-Internal-API-Key", "test-key")
	return req
}

func TestInternalEndpointsRejectMissingKey(t *testing.T) {
	router := newTestRouter(t, newAPIRepoStub())

	req := httptest.NewRequest(http.MethodPost, "/internal/accruals/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
}

func TestHandleRunDailyReturns(t *testing.T) {
	repo := newAPIRepoStub()
	repo.eligible = []domain.Investment{{
		ID:                      uuid.New(),
		UserID:                  uuid.New(),
		PlanName:                "Starter Plan",
		PrincipalAmount:         decimal.NewFromInt(150),
		DailyProfitPercent:      decimal.NewFromInt(2),
		DurationDays:            3,
		FirstProfitEligibleDate: time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC),
		Status:                  domain.InvestmentStatusActive,
	}}
	router := newTestRouter(t, repo)

	body := strings.NewReader(`{"as_of":"2025-10-01"}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/internal/accruals/run", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var run domain.JobRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("failed to decode job run: %v", err)
	}
	if run.ProcessedCount != 1 {
		t.Fatalf("expected 1 processed, got %d", run.ProcessedCount)
	}
	if run.Source != app.SourceManual {
		t.Fatalf("expected manual source, got %q", run.Source)
	}
	if !run.TotalApplied.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3.00 applied, got %s", run.TotalApplied)
	}
}

func TestHandleRunDailyReturns_RejectsBadAsOf(t *testing.T) {
	router := newTestRouter(t, newAPIRepoStub())

	body := strings.NewReader(`{"as_of":"October 1st"}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/internal/accruals/run", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad as_of, got %d", rec.Code)
	}
}

func TestHandleStatus_StrictModeSignalsStaleness(t *testing.T) {
	repo := newAPIRepoStub()
	repo.hasSuccess = false
	router := newTestRouter(t, repo)

	req := authed(httptest.NewRequest(http.MethodGet, "/internal/accruals/status?strict=true", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for stale job in strict mode, got %d", rec.Code)
	}

	var status app.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if !status.Stale {
		t.Fatal("expected stale flag in body")
	}
}

func TestHandleStatus_FreshJobReturnsOK(t *testing.T) {
	repo := newAPIRepoStub()
	repo.hasSuccess = true
	router := newTestRouter(t, repo)

	req := authed(httptest.NewRequest(http.MethodGet, "/internal/accruals/status?strict=true", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for fresh job, got %d", rec.Code)
	}
}

func TestHandleGetInvestment(t *testing.T) {
	repo := newAPIRepoStub()
	inv := domain.Investment{
		ID:       uuid.New(),
		PlanName: "Starter Plan",
		Status:   domain.InvestmentStatusActive,
	}
	repo.eligible = []domain.Investment{inv}
	router := newTestRouter(t, repo)

	req := authed(httptest.NewRequest(http.MethodGet, "/internal/accruals/investments/"+inv.ID.String(), nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got domain.Investment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode investment: %v", err)
	}
	if got.ID != inv.ID {
		t.Fatalf("expected investment %s, got %s", inv.ID, got.ID)
	}

	missing := authed(httptest.NewRequest(http.MethodGet, "/internal/accruals/investments/"+uuid.NewString(), nil))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, missing)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown investment, got %d", rec.Code)
	}
}

func TestHandleRollbackReturn_RejectsBadID(t *testing.T) {
	router := newTestRouter(t, newAPIRepoStub())

	req := authed(httptest.NewRequest(http.MethodPost, "/internal/accruals/returns/not-a-uuid/rollback", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestHandleRollbackReturn_NotFound(t *testing.T) {
	router := newTestRouter(t, newAPIRepoStub())

	req := authed(httptest.NewRequest(http.MethodPost, "/internal/accruals/returns/"+uuid.NewString()+"/rollback", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown return, got %d", rec.Code)
	}
}

/**
 * @description
 * HTTP handlers for the accrual service's internal trigger and monitoring
 * endpoints. The run endpoint is the scheduler-equivalent "run now" entry
 * point; the status endpoint backs external health-check tooling, which
 * treats a non-200 as a failed check when strict mode is requested.
 */
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/axixfinance/accrual-service/internal/app"
	"github.com/axixfinance/accrual-service/internal/store"
)

// Handler holds the application services that handlers interact with.
type Handler struct {
	engine         *app.Engine
	reconciler     *app.Reconciler
	logger         *slog.Logger
	staleThreshold int
}

// NewHandler creates a new Handler.
func NewHandler(engine *app.Engine, reconciler *app.Reconciler, logger *slog.Logger, staleThresholdHours int) *Handler {
	return &Handler{
		engine:         engine,
		reconciler:     reconciler,
		logger:         logger,
		staleThreshold: staleThresholdHours,
	}
}

type runRequest struct {
	AsOf string `json:"as_of"` // optional YYYY-MM-DD override for backfill/testing
}

func (h *Handler) handleRunDailyReturns(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var asOf time.Time
	if req.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", req.AsOf)
		if err != nil {
			http.Error(w, "as_of must be a YYYY-MM-DD date", http.StatusBadRequest)
			return
		}
		asOf = parsed
	}

	run, err := h.engine.RunDailyReturns(r.Context(), asOf, app.SourceManual)
	if err != nil {
		h.logger.Error("manual daily returns run failed", "error", err)
		respondWithJSON(w, http.StatusInternalServerError, run)
		return
	}

	respondWithJSON(w, http.StatusOK, run)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	threshold := h.staleThreshold
	if v := r.URL.Query().Get("threshold_hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "threshold_hours must be a positive integer", http.StatusBadRequest)
			return
		}
		threshold = parsed
	}

	status, err := h.engine.GetStatus(r.Context(), threshold, 10)
	if err != nil {
		h.logger.Error("failed to fetch job status", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Strict mode mirrors the health-check script convention: a stale job is
	// reported through the status code, not just the body.
	if status.Stale && r.URL.Query().Get("strict") == "true" {
		respondWithJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) handleGetInvestment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Investment ID must be a UUID", http.StatusBadRequest)
		return
	}

	inv, err := h.reconciler.GetInvestment(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrInvestmentNotFound) {
			http.Error(w, "Investment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch investment", "investment_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, inv)
}

func (h *Handler) handleListReturns(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Investment ID must be a UUID", http.StatusBadRequest)
		return
	}

	returns, err := h.reconciler.ListReturns(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list returns", "investment_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(returns),
		"returns": returns,
	})
}

func (h *Handler) handleRateDrift(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.reconciler.FindRateDrift(r.Context())
	if err != nil {
		h.logger.Error("rate drift audit failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(drifts),
		"drifts": drifts,
	})
}

func (h *Handler) handleDuplicateReturns(w http.ResponseWriter, r *http.Request) {
	dups, err := h.reconciler.FindDuplicateReturns(r.Context())
	if err != nil {
		h.logger.Error("duplicate return audit failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(dups),
		"duplicates": dups,
	})
}

func (h *Handler) handleRollbackReturn(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Return ID must be a UUID", http.StatusBadRequest)
		return
	}

	inv, err := h.reconciler.RollbackReturn(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrReturnNotFound) {
			http.Error(w, "Return not found", http.StatusNotFound)
			return
		}
		h.logger.Error("rollback failed", "return_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, inv)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

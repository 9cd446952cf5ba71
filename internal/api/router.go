/**
 * @description
 * HTTP router setup for the accrual service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers accrual routes.
func NewRouter(h *Handler, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Internal-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Accrual service is healthy"))
	})

	r.Route("/internal/accruals", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/run", h.handleRunDailyReturns)
		r.Get("/status", h.handleStatus)
		r.Get("/investments/{id}", h.handleGetInvestment)
		r.Get("/investments/{id}/returns", h.handleListReturns)
		r.Get("/drift", h.handleRateDrift)
		r.Get("/duplicates", h.handleDuplicateReturns)
		r.Post("/returns/{id}/rollback", h.handleRollbackReturn)
	})

	return r
}

// Package api wires the ledger services to their HTTP boundary.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reward-ledger/internal/api/handler"
)

// DefaultTimeout bounds request handling end to end.
const DefaultTimeout = 15 * time.Second

// HealthChecker reports whether the storage backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter sets up and returns the HTTP router.
func NewRouter(ledger *handler.LedgerHandler, health HealthChecker) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(DefaultTimeout))
	r.Use(metricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health.HealthCheck(req.Context()); err != nil {
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/wallets", func(r chi.Router) {
		r.Get("/{userID}", ledger.GetWallet)
		r.Get("/{userID}/transactions", ledger.GetTransactions)
		r.Post("/earn", ledger.Earn)
		r.Post("/spend", ledger.Spend)
		r.Post("/transfer", ledger.Transfer)
		r.Post("/achievement", ledger.AddAchievement)
	})

	r.Get("/leaderboard", ledger.GetLeaderboard)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

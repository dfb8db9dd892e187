package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts health, metrics and, when jwtSecret is set, the /admin API.
// tokens may be nil, in which case admin tokens must be minted out of band.
func NewRouter(h *AdminHandler, tokens *TokenIssuer, jwtSecret string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	if jwtSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET is empty, admin API disabled")
		return r
	}
	if tokens != nil {
		r.Post("/auth/token", tokens.IssueToken)
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuthMiddleware([]byte(jwtSecret), logger))
		r.Post("/passes", h.TriggerPass)
		r.Get("/passes/last", h.LastPass)
		r.Get("/searches/active", h.ListActiveSearches)
	})
	return r
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/redeemables/pkg/health"
	"github.com/utafrali/redeemables/pkg/middleware"
)

// ServiceName labels metrics and spans emitted by the router.
const ServiceName = "redeemables"

// NewRouter creates a chi router with all redeemables routes registered.
func NewRouter(
	svc Service,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewRedeemableHandler(svc, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenant())
		r.Use(middleware.RequestLogger(logger))

		r.Post("/validations", h.ValidateStack)
		r.Post("/vouchers/{code}/validate", h.ValidateVoucher)
		r.Post("/qualifications", h.Qualify)
		r.Post("/redemptions", h.Redeem)
		r.Delete("/sessions/{key}", h.ReleaseSession)
	})

	return r
}

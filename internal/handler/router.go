package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/infra/observability"
	"github.com/openpledge/pledged/internal/service"
)

// NewRouter creates the HTTP router with all routes and middleware.
// Mutating routes sit behind JWT bearer auth; reads and operational
// endpoints are open.
func NewRouter(svc *service.PledgeService, metrics *observability.Metrics, logger *zap.Logger, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(metricsMiddleware(metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Reads
		r.Get("/pledges/{pledgeID}/schedule", getScheduleHandler(svc, logger))
		r.Get("/pledges/{pledgeID}/installments/open", listOpenInstallmentsHandler(svc, logger))

		// Mutations
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(jwtSecret, logger))

			r.Post("/pledges", createPledgeHandler(svc, logger))
			r.Post("/pledges/{pledgeID}/payments", applyPaymentHandler(svc, logger))
			r.Post("/pledges/{pledgeID}/cancel", cancelPledgeHandler(svc, logger))
			r.Patch("/pledges/{pledgeID}/installments/statuses", refreshStatusesHandler(svc, logger))
			r.Delete("/pledges/{pledgeID}", deletePledgeHandler(svc, logger))

			r.Patch("/installments/{installmentID}/status", setInstallmentStatusHandler(svc, logger))
			r.Post("/installments/{installmentID}/reminders", markRemindedHandler(svc, logger))

			r.Post("/payment-events", paymentEventHandler(svc, logger))
		})
	})

	return r
}

func metricsMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = r.URL.Path
			}
			metrics.RecordOperation(r.Method+" "+pattern, strconv.Itoa(ww.Status()), time.Since(start))
		})
	}
}

func healthzHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := "healthy"

		// A miss on a sentinel id proves the store round-trip works.
		if _, err := svc.GetSchedule(r.Context(), "health-check"); err != nil {
			var notFound *domain.ErrNotFound
			if !errors.As(err, &notFound) {
				status = "degraded"
				logger.Warn("health check store probe failed", zap.Error(err))
			}
		}

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"checked_at": time.Now().Format(time.RFC3339),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

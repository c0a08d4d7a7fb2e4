package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unihub-exe/unihub-core/internal/observability"
	"github.com/unihub-exe/unihub-core/internal/ratelimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.Post("/v1/events/{id}/register", h.Register)
	r.Post("/v1/events/{id}/unregister", h.Unregister)
	r.Post("/v1/events/{id}/cancel", h.CancelEvent)
	r.Post("/v1/events/{id}/checkin", h.CheckIn)
	r.Post("/v1/events/{id}/pending/{tok}/approve", h.ApprovePending)
	r.Get("/v1/wallet/{tok}", h.GetWallet)
	r.Get("/v1/wallet/{tok}/transactions", h.GetTransactions)
	r.Post("/v1/payouts", h.RequestPayout)
	r.Post("/v1/payouts/{id}/approve", h.ApprovePayout)
	r.Post("/v1/payouts/{id}/reject", h.RejectPayout)
	r.Post("/v1/webhooks/paystack", h.PaystackWebhook)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

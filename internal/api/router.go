package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/avolkhov/storefront-checkout/internal/metrics"
)

type RouterConfig struct {
	Payments       *PaymentsHandler
	Coupons        *CouponsHandler
	Metrics        *metrics.ServerMetrics
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	r.Use(chimiddleware.Compress(5))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(UserIDMiddleware)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/checkout-session", cfg.Payments.CreateCheckoutSession)
			r.Post("/checkout-success", cfg.Payments.ConfirmCheckout)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", cfg.Coupons.GetCoupon)
			r.Post("/validate", cfg.Coupons.ValidateCoupon)
		})
	})

	return r
}

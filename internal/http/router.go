package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HealthCheck reports an unhealthy dependency by returning an error.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64

	Menu     *MenuHandler
	Cart     *CartHandler
	Checkout *CheckoutHandler

	// The collaborator endpoints are mounted only when this process serves
	// them; nil handlers are skipped.
	Address *AddressHandler
	Coupons *CouponHandler
	Orders  *OrdersHandler

	HealthChecks map[string]HealthCheck
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(metrics.Middleware)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", healthHandler(cfg.HealthChecks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Menu != nil {
			r.Get("/menu", cfg.Menu.ListItems)
		}

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware)

			if cfg.Cart != nil {
				r.Route("/cart", func(r chi.Router) {
					r.Get("/", cfg.Cart.GetCart)
					r.Delete("/", cfg.Cart.ClearCart)
					r.Get("/count", cfg.Cart.Count)
					r.Post("/items", cfg.Cart.AddItem)
					r.Put("/items/{item_id}", cfg.Cart.UpdateQuantity)
					r.Delete("/items/{item_id}", cfg.Cart.RemoveItem)
				})
			}

			if cfg.Checkout != nil {
				r.Route("/checkout", func(r chi.Router) {
					r.Get("/", cfg.Checkout.GetState)
					r.Post("/step", cfg.Checkout.GoToStep)
					r.Post("/back", cfg.Checkout.Back)
					r.Put("/delivery", cfg.Checkout.SetDelivery)
					r.Put("/payment", cfg.Checkout.SetPayment)
					r.Post("/coupon", cfg.Checkout.ApplyCoupon)
					r.Delete("/coupon", cfg.Checkout.RemoveCoupon)
					r.Put("/terms", cfg.Checkout.AcceptTerms)
					r.Get("/summary", cfg.Checkout.Summary)
					r.Post("/submit", cfg.Checkout.Submit)
				})
			}
		})

		if cfg.Address != nil {
			r.Post("/address/validate", cfg.Address.ValidateAddress)
			r.Post("/zip/validate", cfg.Address.ValidateZip)
		}
		if cfg.Coupons != nil {
			r.Post("/coupons/validate", cfg.Coupons.Validate)
			r.Post("/coupons/apply", cfg.Coupons.Apply)
		}
		if cfg.Orders != nil {
			r.Post("/orders", cfg.Orders.CreateOrder)
			r.Get("/orders/{order_id}", cfg.Orders.GetOrder)
		}
	})

	return otelhttp.NewHandler(r, "checkout-api")
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		respondJSON(w, code, status)
	}
}

// Package metrics exposes the Prometheus collectors for the checkout API.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	stepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_step_transitions_total",
			Help: "Checkout step transitions",
		},
		[]string{"from", "to"},
	)

	cartChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_cart_changes_total",
			Help: "Cart mutations by action",
		},
		[]string{"action"},
	)

	ordersConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_orders_confirmed_total",
			Help: "Orders confirmed, split by replay",
		},
		[]string{"replayed"},
	)
)

// Middleware records request count and latency, labelled by the chi route
// pattern so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, path, strconv.Itoa(status)}
		httpRequestsTotal.WithLabelValues(labels...).Inc()
		httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

func RecordOrderOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

// Subscribe counts bus events. The returned function unsubscribes.
func Subscribe(bus *events.Bus) func() {
	return bus.Subscribe(func(_ context.Context, e events.Event) {
		switch ev := e.(type) {
		case events.StepChanged:
			stepTransitions.WithLabelValues(ev.From.String(), ev.To.String()).Inc()
		case events.CartChanged:
			cartChanges.WithLabelValues(string(ev.Action)).Inc()
		case events.OrderConfirmed:
			ordersConfirmed.WithLabelValues(strconv.FormatBool(ev.Replayed)).Inc()
		}
	})
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/metrics"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/orders"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrderService interface {
	CreateOrder(ctx context.Context, order domain.Order, key string) (*domain.Confirmation, error)
	GetOrder(ctx context.Context, id string) (*orders.Record, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
}

func NewOrdersHandler(svc OrderService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{orders: svc, timeout: timeout}
}

type OrderResponseDTO struct {
	ID        string              `json:"id"`
	Status    string              `json:"status"`
	Items     []domain.CartLine   `json:"items"`
	Delivery  domain.DeliveryInfo `json:"delivery"`
	Payment   domain.PaymentInfo  `json:"payment"`
	Totals    domain.OrderTotals  `json:"totals"`
	Client    domain.ClientInfo   `json:"client"`
	CouponID  string              `json:"coupon_id,omitempty"`
	CreatedAt string              `json:"created_at"`
}

func toOrderDTO(rec *orders.Record) OrderResponseDTO {
	items := rec.Items
	if items == nil {
		items = make([]domain.CartLine, 0)
	}
	return OrderResponseDTO{
		ID:        rec.ID.String(),
		Status:    string(rec.Status),
		Items:     items,
		Delivery:  rec.Delivery,
		Payment:   rec.Payment,
		Totals:    rec.Totals,
		Client:    rec.Client,
		CouponID:  rec.CouponID,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
}

// POST /api/v1/orders
//
// The Idempotency-Key header is required. A repeated key answers 200 with the
// stored order and replayed=true instead of 201.
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key := r.Header.Get(HeaderIdempotencyKey)
	if key == "" {
		respondError(w, http.StatusBadRequest, "missing_idempotency_key", "Idempotency-Key header is required")
		return
	}

	var req domain.Order
	if !decodeJSON(w, r, &req) {
		return
	}

	conf, err := h.orders.CreateOrder(ctx, req, key)
	metrics.RecordOrderOperation("create", err == nil)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if conf.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, conf)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}

	rec, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(rec))
}

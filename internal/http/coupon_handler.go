package http

import (
	"context"
	"net/http"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/coupon"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
)

type CouponService interface {
	Validate(ctx context.Context, code string, amount money.Amount) (*coupon.Validation, error)
	Apply(ctx context.Context, couponID, orderID string) error
}

type CouponHandler struct {
	coupons CouponService
	timeout time.Duration
}

func NewCouponHandler(svc CouponService, timeout time.Duration) *CouponHandler {
	return &CouponHandler{coupons: svc, timeout: timeout}
}

type CouponValidateRequestDTO struct {
	Code   string       `json:"code"`
	Amount money.Amount `json:"amount"`
}

type CouponApplyRequestDTO struct {
	CouponID string `json:"coupon_id"`
	OrderID  string `json:"order_id"`
}

// POST /api/v1/coupons/validate
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CouponValidateRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.coupons.Validate(ctx, req.Code, req.Amount)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// POST /api/v1/coupons/apply
func (h *CouponHandler) Apply(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CouponApplyRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}

	if err := h.coupons.Apply(ctx, req.CouponID, req.OrderID); err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"applied": true})
}

package http

import (
	"context"
	"net/http"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/checkout"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/metrics"
)

type CheckoutService interface {
	State(ctx context.Context, sessionID string) (*checkout.Outcome, error)
	GoToStep(ctx context.Context, sessionID string, target domain.Step) (*checkout.Outcome, error)
	PrevStep(ctx context.Context, sessionID string) (*checkout.Outcome, error)
	SetDelivery(ctx context.Context, sessionID string, in checkout.DeliveryInput) (*checkout.Outcome, error)
	SetPayment(ctx context.Context, sessionID, mode string) (*checkout.Outcome, error)
	ApplyCoupon(ctx context.Context, sessionID, code string) (*checkout.Outcome, error)
	RemoveCoupon(ctx context.Context, sessionID string) (*checkout.Outcome, error)
	AcceptTerms(ctx context.Context, sessionID string, accepted bool) (*checkout.Outcome, error)
	Summary(ctx context.Context, sessionID string) (*checkout.Summary, error)
	Submit(ctx context.Context, sessionID string, req checkout.SubmitRequest) (*checkout.SubmitResult, error)
}

// CheckoutHandler does not add its own timeout: the controller bounds each
// collaborator call and retries submission within the request.
type CheckoutHandler struct {
	checkout CheckoutService
}

func NewCheckoutHandler(svc CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc}
}

type GoToStepRequestDTO struct {
	Target int `json:"target"`
}

type PaymentRequestDTO struct {
	Mode string `json:"mode"`
}

type CouponRequestDTO struct {
	Code string `json:"code"`
}

type TermsRequestDTO struct {
	Accepted bool `json:"accepted"`
}

// respondOutcome answers 200 for an accepted change and 422 with the stored
// state when the change was rejected.
func respondOutcome(w http.ResponseWriter, out *checkout.Outcome) {
	status := http.StatusOK
	if !out.Result.Valid {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, out)
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetState(w http.ResponseWriter, r *http.Request) {
	out, err := h.checkout.State(r.Context(), getSessionID(r.Context()))
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// POST /api/v1/checkout/step
func (h *CheckoutHandler) GoToStep(w http.ResponseWriter, r *http.Request) {
	var req GoToStepRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	target := domain.Step(req.Target)
	if !target.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_step", "target must be between 1 and 4")
		return
	}

	out, err := h.checkout.GoToStep(r.Context(), getSessionID(r.Context()), target)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondOutcome(w, out)
}

// POST /api/v1/checkout/back
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	out, err := h.checkout.PrevStep(r.Context(), getSessionID(r.Context()))
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondOutcome(w, out)
}

// PUT /api/v1/checkout/delivery
func (h *CheckoutHandler) SetDelivery(w http.ResponseWriter, r *http.Request) {
	var req checkout.DeliveryInput
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.checkout.SetDelivery(r.Context(), getSessionID(r.Context()), req)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondOutcome(w, out)
}

// PUT /api/v1/checkout/payment
func (h *CheckoutHandler) SetPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.checkout.SetPayment(r.Context(), getSessionID(r.Context()), req.Mode)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondOutcome(w, out)
}

// POST /api/v1/checkout/coupon
func (h *CheckoutHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req CouponRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.checkout.ApplyCoupon(r.Context(), getSessionID(r.Context()), req.Code)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondOutcome(w, out)
}

// DELETE /api/v1/checkout/coupon
func (h *CheckoutHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	out, err := h.checkout.RemoveCoupon(r.Context(), getSessionID(r.Context()))
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondOutcome(w, out)
}

// PUT /api/v1/checkout/terms
func (h *CheckoutHandler) AcceptTerms(w http.ResponseWriter, r *http.Request) {
	var req TermsRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.checkout.AcceptTerms(r.Context(), getSessionID(r.Context()), req.Accepted)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondOutcome(w, out)
}

// GET /api/v1/checkout/summary
func (h *CheckoutHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.checkout.Summary(r.Context(), getSessionID(r.Context()))
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// POST /api/v1/checkout/submit
//
// A client retrying after a network error sends the idempotency key it got
// back (or generated) for the first attempt, either in the body or in the
// Idempotency-Key header.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req checkout.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)
	}

	res, err := h.checkout.Submit(r.Context(), getSessionID(r.Context()), req)
	metrics.RecordOrderOperation("submit", err == nil)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	status := http.StatusCreated
	if res.Confirmation.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, res)
}

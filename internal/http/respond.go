package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/cart"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/catalog"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/checkout"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/coupon"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/delivery"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/logger"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/orders"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleError converts domain errors to HTTP responses. Anything it does not
// recognise is logged and reported as a 500 without details. A failed submit
// echoes its idempotency key in the Idempotency-Key header.
func handleError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContext(ctx, zap.L())

	var se *checkout.SubmitError
	if errors.As(err, &se) && se.Key != "" {
		w.Header().Set(HeaderIdempotencyKey, se.Key)
	}

	var (
		ve   *checkout.ValidationError
		ext  *domain.ExternalServiceError
		conf *delivery.ConfigurationError
	)
	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: ve.Result.Message,
			Code:  "validation_failed",
			Field: ve.Result.Field,
		})
	case errors.As(err, &conf):
		log.Error("delivery configuration error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "configuration_error", "delivery is misconfigured")
	case errors.As(err, &ext):
		log.Warn("collaborator call failed", zap.String("service", ext.Service), zap.String("op", ext.Op), zap.Error(err))
		if ext.Timeout() {
			respondError(w, http.StatusGatewayTimeout, "timeout", "the service did not answer in time, please retry")
			return
		}
		respondError(w, http.StatusBadGateway, "service_unavailable", "a service is unavailable, please retry")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, checkout.ErrIllegalTransition),
		errors.Is(err, checkout.ErrNotAtConfirmation),
		errors.Is(err, delivery.ErrSuperseded),
		errors.Is(err, cart.ErrConflict),
		errors.Is(err, coupon.ErrCouponExhausted),
		errors.Is(err, orders.ErrIdempotencyKeyExpired):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, checkout.ErrTermsNotAccepted),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInvalidOrder):
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.Is(err, orders.ErrMissingIdempotencyKey):
		respondError(w, http.StatusBadRequest, "missing_idempotency_key", err.Error())
	case errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, catalog.ErrItemNotFound),
		errors.Is(err, coupon.ErrCouponNotFound),
		errors.Is(err, orders.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		log.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

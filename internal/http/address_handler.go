package http

import (
	"context"
	"net/http"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/address"
)

type AddressHandler struct {
	validator address.Validator
	timeout   time.Duration
}

func NewAddressHandler(v address.Validator, timeout time.Duration) *AddressHandler {
	return &AddressHandler{validator: v, timeout: timeout}
}

type AddressRequestDTO struct {
	Address string `json:"address"`
	Zip     string `json:"zip"`
}

// POST /api/v1/address/validate
//
// An unserviceable address is a normal answer: 200 with valid=false.
func (h *AddressHandler) ValidateAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddressRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.validator.ValidateAddress(ctx, req.Address, req.Zip)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// POST /api/v1/zip/validate
func (h *AddressHandler) ValidateZip(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddressRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.validator.ValidateZip(ctx, req.Zip)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

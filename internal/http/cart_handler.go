package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
)

type CartService interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	AddItem(ctx context.Context, sessionID, itemID string, qty int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, sessionID, itemID string) (*domain.Cart, error)
	SetQuantity(ctx context.Context, sessionID, itemID string, qty int) (*domain.Cart, error)
	Clear(ctx context.Context, sessionID string) error
	Count(ctx context.Context, sessionID string) (int, error)
}

type CartHandler struct {
	cart    CartService
	timeout time.Duration
}

func NewCartHandler(cart CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{cart: cart, timeout: timeout}
}

type AddItemRequestDTO struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ClearCartRequestDTO struct {
	Confirm bool `json:"confirm"`
}

type CartResponseDTO struct {
	Items []domain.CartLine `json:"items"`
	Count int               `json:"count"`
	Total money.Amount      `json:"total"`
}

func toCartDTO(c *domain.Cart) CartResponseDTO {
	items := c.Lines
	if items == nil {
		items = []domain.CartLine{}
	}
	return CartResponseDTO{Items: items, Count: c.Count(), Total: c.Total()}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.cart.Get(ctx, getSessionID(r.Context()))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(c))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	c, err := h.cart.AddItem(ctx, getSessionID(r.Context()), req.ItemID, req.Quantity)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartDTO(c))
}

// PUT /api/v1/cart/items/{item_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID := chi.URLParam(r, "item_id")
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	c, err := h.cart.SetQuantity(ctx, getSessionID(r.Context()), itemID, req.Quantity)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(c))
}

// DELETE /api/v1/cart/items/{item_id} removes one unit.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.cart.RemoveItem(ctx, getSessionID(r.Context()), chi.URLParam(r, "item_id"))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(c))
}

// DELETE /api/v1/cart needs {"confirm":true}; the storefront asks the user first.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ClearCartRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Confirm {
		respondError(w, http.StatusBadRequest, "confirmation_required", "clearing the cart must be confirmed")
		return
	}

	sessionID := getSessionID(r.Context())
	if err := h.cart.Clear(ctx, sessionID); err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(domain.NewCart(sessionID)))
}

// GET /api/v1/cart/count
func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	n, err := h.cart.Count(ctx, getSessionID(r.Context()))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": n})
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/catalog"
)

type MenuLister interface {
	ListItems(ctx context.Context, category string) ([]*catalog.Item, error)
}

type MenuHandler struct {
	menu    MenuLister
	timeout time.Duration
}

func NewMenuHandler(menu MenuLister, timeout time.Duration) *MenuHandler {
	return &MenuHandler{menu: menu, timeout: timeout}
}

// GET /api/v1/menu?category=
func (h *MenuHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.menu.ListItems(ctx, r.URL.Query().Get("category"))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	if items == nil {
		items = []*catalog.Item{}
	}
	respondJSON(w, http.StatusOK, items)
}

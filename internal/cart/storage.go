package cart

import (
	"context"
	"errors"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
)

var (
	ErrConflict        = errors.New("cart modified concurrently, retries exhausted")
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// maxUpdateRetries bounds optimistic-lock retries in Storage.Update.
const maxUpdateRetries = 10

// Storage persists one serialized cart per session.
//
// Update re-reads the persisted cart, applies fn and writes the result back
// atomically with respect to other Update calls on the same session. fn may be
// called more than once.
type Storage interface {
	Load(ctx context.Context, sessionID string) (*domain.Cart, error)
	Update(ctx context.Context, sessionID string, fn func(*domain.Cart) error) (*domain.Cart, error)
	Delete(ctx context.Context, sessionID string) error
}

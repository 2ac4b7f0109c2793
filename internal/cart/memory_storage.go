package cart

import (
	"context"
	"sync"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
)

type MemoryStorage struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{carts: make(map[string]*domain.Cart)}
}

func (m *MemoryStorage) Load(_ context.Context, sessionID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.carts[sessionID]; ok {
		return c.Clone(), nil
	}
	return domain.NewCart(sessionID), nil
}

func (m *MemoryStorage) Update(_ context.Context, sessionID string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.carts[sessionID]
	if !ok {
		current = domain.NewCart(sessionID)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()

	if next.IsEmpty() {
		delete(m.carts, sessionID)
	} else {
		m.carts[sessionID] = next
	}
	return next.Clone(), nil
}

func (m *MemoryStorage) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, sessionID)
	return nil
}

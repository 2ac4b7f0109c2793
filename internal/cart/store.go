package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/catalog"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/events"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Catalog interface {
	FindItem(ctx context.Context, id string) (*catalog.Item, error)
}

// Store is the single source of truth for what a session is buying. Every
// mutation goes through Storage.Update, so it always starts from the persisted
// cart, and is announced on the bus once written.
type Store struct {
	storage Storage
	catalog Catalog
	bus     *events.Bus
	logger  *zap.Logger
	sfg     singleflight.Group
}

func NewStore(storage Storage, catalog Catalog, bus *events.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		storage: storage,
		catalog: catalog,
		bus:     bus,
		logger:  logger,
	}
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		return s.storage.Load(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	// callers sharing a flight must not share the slice
	return v.(*domain.Cart).Clone(), nil
}

func (s *Store) AddItem(ctx context.Context, sessionID, itemID string, qty int) (*domain.Cart, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	item, err := s.lookup(ctx, itemID)
	if err != nil {
		return nil, err
	}

	c, err := s.storage.Update(ctx, sessionID, func(c *domain.Cart) error {
		c.Add(domain.CartLine{ItemID: item.ID, Name: item.Name, UnitPrice: item.Price}, qty)
		return nil
	})
	if err != nil {
		s.logger.Error("cart add item failed", zap.String("session_id", sessionID), zap.String("item_id", itemID), zap.Error(err))
		return nil, err
	}

	s.notify(ctx, c, events.CartActionAdd, itemID)
	return c, nil
}

// RemoveItem decrements by one. Removing an item that is not in the cart
// leaves it unchanged and is not an error.
func (s *Store) RemoveItem(ctx context.Context, sessionID, itemID string) (*domain.Cart, error) {
	changed := false
	c, err := s.storage.Update(ctx, sessionID, func(c *domain.Cart) error {
		changed = c.Decrement(itemID)
		return nil
	})
	if err != nil {
		s.logger.Error("cart remove item failed", zap.String("session_id", sessionID), zap.String("item_id", itemID), zap.Error(err))
		return nil, err
	}

	if changed {
		s.notify(ctx, c, events.CartActionRemove, itemID)
	}
	return c, nil
}

// SetQuantity sets the quantity directly. qty <= 0 removes the line.
func (s *Store) SetQuantity(ctx context.Context, sessionID, itemID string, qty int) (*domain.Cart, error) {
	var item *catalog.Item
	if qty > 0 {
		var err error
		if item, err = s.lookup(ctx, itemID); err != nil {
			return nil, err
		}
	}

	changed := false
	c, err := s.storage.Update(ctx, sessionID, func(c *domain.Cart) error {
		changed = c.SetQuantity(itemID, qty)
		if !changed && item != nil {
			c.Add(domain.CartLine{ItemID: item.ID, Name: item.Name, UnitPrice: item.Price}, qty)
			changed = true
		}
		return nil
	})
	if err != nil {
		s.logger.Error("cart set quantity failed", zap.String("session_id", sessionID), zap.String("item_id", itemID), zap.Error(err))
		return nil, err
	}

	if changed {
		s.notify(ctx, c, events.CartActionSet, itemID)
	}
	return c, nil
}

// Clear empties the cart. Clearing an empty cart is fine.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.storage.Delete(ctx, sessionID); err != nil {
		s.logger.Error("cart clear failed", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}
	s.notify(ctx, domain.NewCart(sessionID), events.CartActionClear, "")
	return nil
}

func (s *Store) Total(ctx context.Context, sessionID string) (money.Amount, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return money.Zero(), err
	}
	return c.Total(), nil
}

func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

func (s *Store) lookup(ctx context.Context, itemID string) (*catalog.Item, error) {
	item, err := s.catalog.FindItem(ctx, itemID)
	if errors.Is(err, catalog.ErrItemNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	return item, nil
}

func (s *Store) notify(ctx context.Context, c *domain.Cart, action events.CartAction, itemID string) {
	s.bus.Publish(ctx, events.CartChanged{
		SessionID: c.SessionID,
		Action:    action,
		ItemID:    itemID,
		Count:     c.Count(),
		Total:     c.Total(),
	})
}

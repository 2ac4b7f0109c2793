// Package events is the in-process notification hub. Cart mutations, step
// transitions and order confirmations are published here and listeners
// re-read whatever they render from the owning store.
package events

import (
	"context"
	"slices"
	"sync"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
)

type Event interface {
	Name() string
}

type CartAction string

const (
	CartActionAdd    CartAction = "add"
	CartActionRemove CartAction = "remove"
	CartActionSet    CartAction = "set"
	CartActionClear  CartAction = "clear"
)

type CartChanged struct {
	SessionID string
	Action    CartAction
	ItemID    string
	Count     int
	Total     money.Amount
}

func (CartChanged) Name() string { return "cart.changed" }

type StepChanged struct {
	SessionID string
	From      domain.Step
	To        domain.Step
}

func (StepChanged) Name() string { return "checkout.step_changed" }

type OrderConfirmed struct {
	SessionID string
	OrderID   string
	Totals    domain.OrderTotals
	Replayed  bool
}

func (OrderConfirmed) Name() string { return "order.confirmed" }

type Handler func(ctx context.Context, e Event)

// Bus delivers events synchronously, in publish order, to every subscriber.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
}

package domain

import (
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
)

type CartLine struct {
	ItemID    string       `json:"item_id"`
	Name      string       `json:"name"`
	UnitPrice money.Amount `json:"unit_price"`
	Quantity  int          `json:"quantity"`
}

func (l CartLine) LineTotal() money.Amount {
	return l.UnitPrice.MulInt(l.Quantity)
}

// Cart keeps at most one line per item id, in insertion order.
type Cart struct {
	SessionID string     `json:"session_id"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewCart(sessionID string) *Cart {
	return &Cart{SessionID: sessionID, Lines: []CartLine{}}
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Lines = make([]CartLine, len(c.Lines))
	copy(cp.Lines, c.Lines)
	return &cp
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) index(itemID string) int {
	for i, l := range c.Lines {
		if l.ItemID == itemID {
			return i
		}
	}
	return -1
}

func (c *Cart) Line(itemID string) (CartLine, bool) {
	if i := c.index(itemID); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

// Add increments an existing line or appends a new one.
func (c *Cart) Add(line CartLine, qty int) {
	if qty <= 0 {
		return
	}
	if i := c.index(line.ItemID); i >= 0 {
		c.Lines[i].Quantity += qty
		return
	}
	line.Quantity = qty
	c.Lines = append(c.Lines, line)
}

// Decrement lowers the quantity by one and drops the line at zero.
// Reports false if the item was not in the cart.
func (c *Cart) Decrement(itemID string) bool {
	i := c.index(itemID)
	if i < 0 {
		return false
	}
	c.Lines[i].Quantity--
	if c.Lines[i].Quantity <= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	}
	return true
}

// SetQuantity sets an existing line. qty <= 0 removes it.
func (c *Cart) SetQuantity(itemID string, qty int) bool {
	i := c.index(itemID)
	if i < 0 {
		return false
	}
	if qty <= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		return true
	}
	c.Lines[i].Quantity = qty
	return true
}

// Total is tax inclusive: menu prices are stored TTC.
func (c *Cart) Total() money.Amount {
	total := money.Zero()
	for _, l := range c.Lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

func (c *Cart) Count() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

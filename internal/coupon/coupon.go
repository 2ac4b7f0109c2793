package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	"github.com/shopspring/decimal"
)

var (
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrCouponExhausted = errors.New("coupon usage limit reached")
)

type Kind string

const (
	KindFixed   Kind = "fixed"
	KindPercent Kind = "percent"
)

type Coupon struct {
	ID             string
	Code           string
	Kind           Kind
	Value          decimal.Decimal
	MinOrderAmount money.Amount
	MaxUses        int
	UsedCount      int
	Active         bool
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// Discount for an order amount. Percent coupons are rounded to cents.
func (c *Coupon) Discount(amount money.Amount) money.Amount {
	if c.Kind == KindPercent {
		return money.New(amount.Decimal().Mul(c.Value).Div(decimal.NewFromInt(100)))
	}
	return money.New(c.Value)
}

func (c *Coupon) Exhausted() bool {
	return c.MaxUses > 0 && c.UsedCount >= c.MaxUses
}

type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonExpired       Reason = "expired"
	ReasonMinimumNotMet Reason = "minimum_not_met"
	ReasonAlreadyUsed   Reason = "already_used"
	ReasonExceedsTotal  Reason = "exceeds_total"
)

func (r Reason) Message() string {
	switch r {
	case ReasonNotFound:
		return "this coupon code does not exist"
	case ReasonExpired:
		return "this coupon has expired"
	case ReasonMinimumNotMet:
		return "order amount is below the coupon minimum"
	case ReasonAlreadyUsed:
		return "this coupon has already been used"
	case ReasonExceedsTotal:
		return "coupon discount exceeds the order amount"
	}
	return "coupon is not valid"
}

// Validation is the outcome of checking a code against an order amount.
// DiscountAmount is always positive and is subtracted from the total only.
type Validation struct {
	Valid          bool         `json:"valid"`
	CouponID       string       `json:"coupon_id,omitempty"`
	Code           string       `json:"code"`
	DiscountAmount money.Amount `json:"discount_amount"`
	NewTotal       money.Amount `json:"new_total"`
	Reason         Reason       `json:"reason,omitempty"`
	Message        string       `json:"message,omitempty"`
}

type Repository interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	// Redeem records one use of the coupon for orderID. It reports false if
	// that order already redeemed it.
	Redeem(ctx context.Context, couponID, orderID string) (bool, error)
}

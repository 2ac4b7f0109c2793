package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
)

type DeliveryMode string

const (
	DeliveryModePickup   DeliveryMode = "PICKUP"
	DeliveryModeDelivery DeliveryMode = "DELIVERY"
)

func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch DeliveryMode(strings.ToUpper(strings.TrimSpace(s))) {
	case DeliveryModePickup:
		return DeliveryModePickup, nil
	case DeliveryModeDelivery:
		return DeliveryModeDelivery, nil
	}
	return "", fmt.Errorf("unknown delivery mode %q", s)
}

func (m DeliveryMode) String() string {
	return string(m)
}

type PaymentMode string

const (
	PaymentModeCard    PaymentMode = "CARD"
	PaymentModeCash    PaymentMode = "CASH"
	PaymentModeTickets PaymentMode = "TICKETS"
)

func ParsePaymentMode(s string) (PaymentMode, error) {
	switch PaymentMode(strings.ToUpper(strings.TrimSpace(s))) {
	case PaymentModeCard:
		return PaymentModeCard, nil
	case PaymentModeCash:
		return PaymentModeCash, nil
	case PaymentModeTickets:
		return PaymentModeTickets, nil
	}
	return "", fmt.Errorf("unknown payment mode %q", s)
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// DeliveryInfo is populated by a delivery strategy. For PICKUP the address and
// zip are nil and the fee is zero.
type DeliveryInfo struct {
	Mode         DeliveryMode `json:"mode"`
	Date         string       `json:"date"`
	Time         string       `json:"time"`
	Address      *string      `json:"address"`
	Zip          *string      `json:"zip"`
	Instructions *string      `json:"instructions"`
	Fee          money.Amount `json:"fee"`
	Distance     *float64     `json:"distance,omitempty"`
	Validated    bool         `json:"validated"`
}

// ScheduledAt resolves the date and time in loc.
func (d *DeliveryInfo) ScheduledAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, d.Date+" "+d.Time, loc)
}

type PaymentInfo struct {
	Mode PaymentMode `json:"mode"`
}

type Coupon struct {
	Code           string       `json:"code"`
	CouponID       string       `json:"coupon_id"`
	DiscountAmount money.Amount `json:"discount_amount"`
	// ValidatedFor is the cart total the discount was accepted against.
	ValidatedFor money.Amount `json:"validated_for"`
}

type OrderTotals struct {
	Subtotal    money.Amount `json:"subtotal"`
	TaxAmount   money.Amount `json:"tax_amount"`
	DeliveryFee money.Amount `json:"delivery_fee"`
	Discount    money.Amount `json:"discount"`
	Total       money.Amount `json:"total"`
}

type ClientInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Order is the submission payload. It is built once per submit attempt.
type Order struct {
	SessionID      string       `json:"session_id"`
	Items          []CartLine   `json:"items"`
	Delivery       DeliveryInfo `json:"delivery"`
	Payment        PaymentInfo  `json:"payment"`
	Totals         OrderTotals  `json:"totals"`
	Client         ClientInfo   `json:"client"`
	CouponID       string       `json:"coupon_id,omitempty"`
	IdempotencyKey string       `json:"idempotency_key"`
}

type Confirmation struct {
	OrderID   string      `json:"order_id"`
	Status    string      `json:"status"`
	Totals    OrderTotals `json:"totals"`
	CreatedAt time.Time   `json:"created_at"`
	Replayed  bool        `json:"replayed"`
}

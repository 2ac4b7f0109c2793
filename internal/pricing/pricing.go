// Package pricing derives order totals from a tax-inclusive cart total.
package pricing

import (
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	"github.com/shopspring/decimal"
)

type Strategy interface {
	Compute(cartTotal, deliveryFee, discount money.Amount) domain.OrderTotals
}

// VAT splits a TTC cart total into pre-tax subtotal and tax at a fixed rate.
// The discount only lowers the grand total.
type VAT struct {
	rate decimal.Decimal
}

func NewVAT(rate decimal.Decimal) *VAT {
	return &VAT{rate: rate}
}

func (v *VAT) Rate() decimal.Decimal {
	return v.rate
}

func (v *VAT) Compute(cartTotal, deliveryFee, discount money.Amount) domain.OrderTotals {
	divisor := decimal.NewFromInt(1).Add(v.rate)
	subtotal := money.New(cartTotal.Decimal().Div(divisor))
	tax := cartTotal.Sub(subtotal)

	return domain.OrderTotals{
		Subtotal:    subtotal,
		TaxAmount:   tax,
		DeliveryFee: deliveryFee,
		Discount:    discount,
		Total:       cartTotal.Add(deliveryFee).Sub(discount),
	}
}

package domain

import "github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"

type Step int

const (
	StepCart         Step = 1
	StepDelivery     Step = 2
	StepPayment      Step = 3
	StepConfirmation Step = 4
)

func (s Step) Valid() bool {
	return s >= StepCart && s <= StepConfirmation
}

func (s Step) IsTerminal() bool {
	return s == StepConfirmation
}

// String representation (for logging)
func (s Step) String() string {
	switch s {
	case StepCart:
		return "CART"
	case StepDelivery:
		return "DELIVERY"
	case StepPayment:
		return "PAYMENT"
	case StepConfirmation:
		return "CONFIRMATION"
	}
	return "UNKNOWN"
}

// CheckoutState is kept per session until the order is confirmed or the
// session expires. The cart itself is always read from the cart store.
type CheckoutState struct {
	SessionID     string        `json:"session_id"`
	CurrentStep   Step          `json:"current_step"`
	Delivery      *DeliveryInfo `json:"delivery,omitempty"`
	FeeOverride   *money.Amount `json:"fee_override,omitempty"`
	Payment       *PaymentInfo  `json:"payment,omitempty"`
	Coupon        *Coupon       `json:"coupon,omitempty"`
	Totals        OrderTotals   `json:"totals"`
	TermsAccepted bool          `json:"terms_accepted"`
}

func NewCheckoutState(sessionID string) *CheckoutState {
	return &CheckoutState{SessionID: sessionID, CurrentStep: StepCart}
}

// ValidationResult carries user-correctable failures. It is never an error.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

func Invalid(field, message string) ValidationResult {
	return ValidationResult{Valid: false, Field: field, Message: message}
}

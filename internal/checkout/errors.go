package checkout

import (
	"errors"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
)

var (
	ErrIllegalTransition = errors.New("illegal checkout step transition")
	ErrNotAtConfirmation = errors.New("order can only be submitted from the confirmation step")
	ErrTermsNotAccepted  = errors.New("terms and conditions must be accepted")
)

// ValidationError is returned by Submit for user-correctable problems found
// while assembling the order.
type ValidationError struct {
	Result domain.ValidationResult
}

func (e *ValidationError) Error() string {
	if e.Result.Field != "" {
		return e.Result.Field + ": " + e.Result.Message
	}
	return e.Result.Message
}

func invalidErr(field, msg string) *ValidationError {
	return &ValidationError{Result: domain.Invalid(field, msg)}
}

// SubmitError wraps a failed submission with the idempotency key it used.
// Retrying with Key cannot create a second order.
type SubmitError struct {
	Key string
	Err error
}

func (e *SubmitError) Error() string {
	return e.Err.Error()
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

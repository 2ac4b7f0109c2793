// Package money holds currency amounts as fixed two-decimal values.
//
// Amounts are rounded half-up to cents whenever they are built, so every value
// that reaches storage or the wire is already a 2-decimal string.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const places = 2

var ErrInvalidAmount = errors.New("invalid amount")

type Amount struct {
	d decimal.Decimal
}

func Zero() Amount {
	return Amount{}
}

// New rounds d to cents.
func New(d decimal.Decimal) Amount {
	return Amount{d: d.Round(places)}
}

func FromInt(units int64) Amount {
	return New(decimal.NewFromInt(units))
}

func FromFloat(f float64) Amount {
	return New(decimal.NewFromFloat(f))
}

func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return New(d), nil
}

// MustParse is for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

func (a Amount) Add(b Amount) Amount {
	return New(a.d.Add(b.d))
}

func (a Amount) Sub(b Amount) Amount {
	return New(a.d.Sub(b.d))
}

func (a Amount) MulInt(n int) Amount {
	return New(a.d.Mul(decimal.NewFromInt(int64(n))))
}

func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

func (a Amount) GreaterThan(b Amount) bool {
	return a.d.GreaterThan(b.d)
}

func (a Amount) LessThan(b Amount) bool {
	return a.d.LessThan(b.d)
}

func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

func (a Amount) IsNegative() bool {
	return a.d.IsNegative()
}

func (a Amount) String() string {
	return a.d.StringFixed(places)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both "24.00" and 24.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = Amount{}
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a *Amount) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*a = parsed
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*a = parsed
	case float64:
		*a = FromFloat(v)
	case int64:
		*a = FromInt(v)
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidAmount, value)
	}
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/address"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
)

const MessageNotServiceable = "address not serviceable"

// Strategy validates the mode-specific fields of a DeliveryInfo and fills in
// the fee. It only mutates the info it is given.
//
// A returned error means a collaborator failed. User mistakes come back as an
// invalid ValidationResult.
type Strategy interface {
	Supports(mode domain.DeliveryMode) bool
	ValidateAndPopulate(ctx context.Context, info *domain.DeliveryInfo, feeOverride *money.Amount) (domain.ValidationResult, error)
}

type PickupStrategy struct{}

func NewPickupStrategy() *PickupStrategy {
	return &PickupStrategy{}
}

func (PickupStrategy) Supports(mode domain.DeliveryMode) bool {
	return mode == domain.DeliveryModePickup
}

// ValidateAndPopulate always succeeds. Any fee override is ignored.
func (PickupStrategy) ValidateAndPopulate(_ context.Context, info *domain.DeliveryInfo, _ *money.Amount) (domain.ValidationResult, error) {
	info.Fee = money.Zero()
	info.Address = nil
	info.Zip = nil
	info.Distance = nil
	info.Instructions = trimmed(info.Instructions)
	info.Validated = true
	return domain.Valid(), nil
}

type HomeDeliveryStrategy struct {
	validator  address.Validator
	defaultFee money.Amount
}

func NewHomeDeliveryStrategy(validator address.Validator, defaultFee money.Amount) *HomeDeliveryStrategy {
	return &HomeDeliveryStrategy{validator: validator, defaultFee: defaultFee}
}

func (HomeDeliveryStrategy) Supports(mode domain.DeliveryMode) bool {
	return mode == domain.DeliveryModeDelivery
}

func (s *HomeDeliveryStrategy) ValidateAndPopulate(ctx context.Context, info *domain.DeliveryInfo, feeOverride *money.Amount) (domain.ValidationResult, error) {
	info.Validated = false
	addr := trimmed(info.Address)
	if addr == nil {
		return domain.Invalid("address", "delivery address is required"), nil
	}
	zip := trimmed(info.Zip)
	if zip == nil {
		return domain.Invalid("zip", "postal code is required"), nil
	}
	if feeOverride != nil && feeOverride.IsNegative() {
		return domain.Invalid("fee", "delivery fee cannot be negative"), nil
	}

	res, err := s.validator.ValidateAddress(ctx, *addr, *zip)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("validate address: %w", err)
	}
	if !res.Valid {
		msg := MessageNotServiceable
		if res.Error != "" {
			msg = msg + ": " + res.Error
		}
		return domain.Invalid("address", msg), nil
	}

	info.Address = addr
	info.Zip = zip
	info.Instructions = trimmed(info.Instructions)
	info.Distance = res.Distance
	info.Fee = s.defaultFee
	if feeOverride != nil {
		info.Fee = *feeOverride
	}
	info.Validated = true
	return domain.Valid(), nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

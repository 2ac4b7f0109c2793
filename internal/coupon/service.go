package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	"go.uber.org/zap"
)

type Service struct {
	repo   Repository
	now    func() time.Time
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, now: time.Now, logger: logger}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Validate checks code against amount. It never changes coupon state.
func (s *Service) Validate(ctx context.Context, code string, amount money.Amount) (*Validation, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return invalid(code, ReasonNotFound), nil
	}

	c, err := s.repo.GetByCode(ctx, code)
	if errors.Is(err, ErrCouponNotFound) {
		return invalid(code, ReasonNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	switch {
	case !c.Active:
		return invalid(code, ReasonNotFound), nil
	case c.ExpiresAt != nil && !s.now().Before(*c.ExpiresAt):
		return invalid(code, ReasonExpired), nil
	case c.Exhausted():
		return invalid(code, ReasonAlreadyUsed), nil
	case amount.LessThan(c.MinOrderAmount):
		return invalid(code, ReasonMinimumNotMet), nil
	}

	discount := c.Discount(amount)
	if discount.GreaterThan(amount) {
		return invalid(code, ReasonExceedsTotal), nil
	}

	return &Validation{
		Valid:          true,
		CouponID:       c.ID,
		Code:           c.Code,
		DiscountAmount: discount,
		NewTotal:       amount.Sub(discount),
	}, nil
}

// Apply consumes one use of the coupon for a confirmed order. Calling it again
// for the same order does nothing.
func (s *Service) Apply(ctx context.Context, couponID, orderID string) error {
	if _, err := uuid.Parse(couponID); err != nil {
		return ErrCouponNotFound
	}
	if orderID == "" {
		return errors.New("coupon apply: order id is required")
	}

	applied, err := s.repo.Redeem(ctx, couponID, orderID)
	if err != nil {
		return fmt.Errorf("redeem coupon: %w", err)
	}
	if !applied {
		s.logger.Info("coupon already redeemed for order", zap.String("coupon_id", couponID), zap.String("order_id", orderID))
	}
	return nil
}

func invalid(code string, reason Reason) *Validation {
	return &Validation{
		Valid:   false,
		Code:    code,
		Reason:  reason,
		Message: reason.Message(),
	}
}

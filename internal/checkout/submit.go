package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/events"
	"go.uber.org/zap"
)

type SubmitRequest struct {
	TermsAccepted bool              `json:"terms_accepted"`
	Client        domain.ClientInfo `json:"client"`
	// IdempotencyKey identifies one user-initiated attempt. Empty means a new
	// attempt and a key is generated.
	IdempotencyKey string `json:"idempotency_key"`
}

type SubmitResult struct {
	Confirmation   *domain.Confirmation `json:"confirmation"`
	IdempotencyKey string               `json:"idempotency_key"`
}

// Submit creates the order for the session. Transient failures are retried
// with the same key; the order service returns the stored order for a key it
// has seen. On failure the checkout state is left as it was and the error is a
// *SubmitError carrying the key, so a generated key can be reused on retry.
func (c *Controller) Submit(ctx context.Context, sessionID string, req SubmitRequest) (*SubmitResult, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = c.newKey()
	}
	log := c.logger.With(zap.String("session_id", sessionID), zap.String("idempotency_key", key))

	receipt, err := c.States.Receipt(ctx, sessionID, key)
	if err != nil {
		return nil, &SubmitError{Key: key, Err: err}
	}
	if receipt != nil {
		return c.replay(ctx, sessionID, key, receipt, log), nil
	}

	order, st, err := c.prepareOrder(ctx, sessionID, req, key)
	if err != nil {
		return nil, &SubmitError{Key: key, Err: err}
	}

	conf, err := c.createOrder(ctx, order, key, log)
	if err != nil {
		return nil, &SubmitError{Key: key, Err: err}
	}

	// redemption is keyed by order id, so a replayed order is not counted twice
	if st.Coupon != nil && st.Coupon.CouponID != "" {
		actx, cancel := c.withTimeout(ctx)
		if err := c.Coupons.Apply(actx, st.Coupon.CouponID, conf.OrderID); err != nil {
			log.Error("failed to record coupon usage",
				zap.String("coupon_id", st.Coupon.CouponID),
				zap.String("order_id", conf.OrderID),
				zap.Error(err))
		}
		cancel()
	}

	cleared := true
	if err := c.Cart.Clear(ctx, sessionID); err != nil {
		cleared = false
		log.Warn("failed to clear cart after order", zap.Error(err))
	}
	if err := c.States.SaveReceipt(ctx, sessionID, key, &Receipt{Confirmation: *conf, CartCleared: cleared}); err != nil {
		log.Warn("failed to save receipt", zap.Error(err))
	}
	if err := c.States.Delete(ctx, sessionID); err != nil {
		log.Warn("failed to discard checkout state", zap.Error(err))
	}

	c.Bus.Publish(ctx, events.OrderConfirmed{
		SessionID: sessionID,
		OrderID:   conf.OrderID,
		Totals:    conf.Totals,
		Replayed:  conf.Replayed,
	})
	log.Info("order submitted", zap.String("order_id", conf.OrderID), zap.Bool("replayed", conf.Replayed))

	return &SubmitResult{Confirmation: conf, IdempotencyKey: key}, nil
}

// replay answers a repeated key from its receipt. The cart is only cleared
// when the first attempt failed to, so items added since stay put.
func (c *Controller) replay(ctx context.Context, sessionID, key string, receipt *Receipt, log *zap.Logger) *SubmitResult {
	if !receipt.CartCleared {
		if err := c.Cart.Clear(ctx, sessionID); err != nil {
			log.Warn("failed to clear cart on replay", zap.Error(err))
		} else {
			receipt.CartCleared = true
			if err := c.States.SaveReceipt(ctx, sessionID, key, receipt); err != nil {
				log.Warn("failed to save receipt", zap.Error(err))
			}
		}
	}
	conf := receipt.Confirmation
	conf.Replayed = true
	log.Info("order submission replayed", zap.String("order_id", conf.OrderID))
	return &SubmitResult{Confirmation: &conf, IdempotencyKey: key}
}

// prepareOrder re-reads the cart and re-checks every step right before the
// order is built, since the cart may have changed since step 4 was reached.
func (c *Controller) prepareOrder(ctx context.Context, sessionID string, req SubmitRequest, key string) (domain.Order, *domain.CheckoutState, error) {
	defer c.lock(sessionID)()

	st, cart, err := c.load(ctx, sessionID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if st.CurrentStep != domain.StepConfirmation {
		return domain.Order{}, nil, ErrNotAtConfirmation
	}
	if req.TermsAccepted && !st.TermsAccepted {
		st.TermsAccepted = true
		if err := c.States.Save(ctx, st); err != nil {
			return domain.Order{}, nil, err
		}
	}
	if !st.TermsAccepted {
		return domain.Order{}, nil, ErrTermsNotAccepted
	}

	client := domain.ClientInfo{
		Name:  strings.TrimSpace(req.Client.Name),
		Phone: strings.TrimSpace(req.Client.Phone),
		Email: strings.TrimSpace(req.Client.Email),
	}
	if client.Name == "" {
		return domain.Order{}, nil, invalidErr("name", "name is required")
	}
	if client.Phone == "" {
		return domain.Order{}, nil, invalidErr("phone", "phone number is required")
	}

	res, changed, err := c.validateStep(ctx, st, cart, domain.StepConfirmation)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if changed {
		if err := c.States.Save(ctx, st); err != nil {
			return domain.Order{}, nil, err
		}
	}
	if !res.Valid {
		return domain.Order{}, nil, &ValidationError{Result: res}
	}

	before := st.Totals
	notice, err := c.refreshTotals(ctx, st, cart)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if notice != "" || !before.Total.Equal(st.Totals.Total) {
		if err := c.States.Save(ctx, st); err != nil {
			return domain.Order{}, nil, err
		}
		msg := "your order total changed, please review it"
		if notice != "" {
			msg = notice
		}
		return domain.Order{}, nil, invalidErr("totals", msg)
	}

	order := domain.Order{
		SessionID:      sessionID,
		Items:          cart.Clone().Lines,
		Delivery:       *st.Delivery,
		Payment:        *st.Payment,
		Totals:         st.Totals,
		Client:         client,
		IdempotencyKey: key,
	}
	if st.Coupon != nil {
		order.CouponID = st.Coupon.CouponID
	}
	return order, st, nil
}

func (c *Controller) createOrder(ctx context.Context, order domain.Order, key string, log *zap.Logger) (*domain.Confirmation, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxSubmitAttempts; attempt++ {
		actx, cancel := c.withTimeout(ctx)
		conf, err := c.Orders.CreateOrder(actx, order, key)
		cancel()
		if err == nil {
			return conf, nil
		}
		lastErr = err
		if !domain.IsRetryable(err) || attempt == c.cfg.MaxSubmitAttempts {
			break
		}

		log.Warn("order submission failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("submit order: %w", ctx.Err())
		case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	log.Error("order submission failed", zap.Error(lastErr))
	return nil, fmt.Errorf("submit order: %w", lastErr)
}

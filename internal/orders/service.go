package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"go.uber.org/zap"
)

// Service persists submitted orders. The same idempotency key always yields
// the same order inside the replay window.
type Service struct {
	repo   Repository
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewService(repo Repository, window time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{repo: repo, window: window, now: time.Now, logger: logger}
}

func (s *Service) CreateOrder(ctx context.Context, order domain.Order, key string) (*domain.Confirmation, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrMissingIdempotencyKey
	}

	if existing, err := s.replay(ctx, key); err != nil || existing != nil {
		return existing, err
	}

	if err := validateOrder(order); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:             uuid.New(),
		IdempotencyKey: key,
		SessionID:      order.SessionID,
		Status:         StatusConfirmed,
		Items:          order.Items,
		Delivery:       order.Delivery,
		Payment:        order.Payment,
		Totals:         order.Totals,
		Client:         order.Client,
		CouponID:       order.CouponID,
	}

	event, err := confirmedEvent(rec)
	if err != nil {
		return nil, err
	}

	err = s.repo.Create(ctx, rec, event)
	if errors.Is(err, ErrDuplicateIdempotency) {
		// lost a race against a concurrent request with the same key
		existing, replayErr := s.replay(ctx, key)
		if replayErr != nil {
			return nil, replayErr
		}
		if existing != nil {
			return existing, nil
		}
		return nil, err
	}
	if err != nil {
		s.logger.Error("create order failed", zap.String("idempotency_key", key), zap.Error(err))
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", rec.ID.String()),
		zap.String("session_id", rec.SessionID),
		zap.String("total", rec.Totals.Total.String()))
	return rec.Confirmation(false), nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Record, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	return s.repo.GetByID(ctx, orderID)
}

func (s *Service) replay(ctx context.Context, key string) (*domain.Confirmation, error) {
	rec, err := s.repo.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if s.now().Sub(rec.CreatedAt) > s.window {
		return nil, ErrIdempotencyKeyExpired
	}
	s.logger.Info("order replayed", zap.String("order_id", rec.ID.String()), zap.String("idempotency_key", key))
	return rec.Confirmation(true), nil
}

func validateOrder(o domain.Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for _, l := range o.Items {
		if l.Quantity < 1 {
			return fmt.Errorf("%w: item %s has quantity %d", ErrInvalidOrder, l.ItemID, l.Quantity)
		}
	}
	if _, err := domain.ParseDeliveryMode(string(o.Delivery.Mode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if _, err := domain.ParsePaymentMode(string(o.Payment.Mode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if o.Totals.Total.IsNegative() {
		return fmt.Errorf("%w: negative total", ErrInvalidOrder)
	}
	if strings.TrimSpace(o.Client.Name) == "" || strings.TrimSpace(o.Client.Phone) == "" {
		return fmt.Errorf("%w: client name and phone are required", ErrInvalidOrder)
	}
	if o.CouponID != "" {
		if _, err := uuid.Parse(o.CouponID); err != nil {
			return fmt.Errorf("%w: malformed coupon id", ErrInvalidOrder)
		}
	}
	return nil
}

func confirmedEvent(rec *Record) (*OutboxEvent, error) {
	payload, err := json.Marshal(OrderConfirmedEvent{
		OrderID:     rec.ID.String(),
		SessionID:   rec.SessionID,
		Items:       rec.Items,
		Mode:        string(rec.Delivery.Mode),
		Date:        rec.Delivery.Date,
		Time:        rec.Delivery.Time,
		Total:       rec.Totals.Total,
		ClientName:  rec.Client.Name,
		ClientEmail: rec.Client.Email,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order confirmed event: %w", err)
	}
	return &OutboxEvent{
		AggregateID: rec.ID.String(),
		EventType:   EventOrderConfirmed,
		Payload:     payload,
	}, nil
}

package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateIdempotency  = errors.New("order for this idempotency key already exists")
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrIdempotencyKeyExpired = errors.New("idempotency key was used outside the replay window")
	ErrInvalidOrder          = errors.New("invalid order")
)

type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Record is a persisted order.
type Record struct {
	ID             uuid.UUID
	IdempotencyKey string
	SessionID      string
	Status         Status
	Items          []domain.CartLine
	Delivery       domain.DeliveryInfo
	Payment        domain.PaymentInfo
	Totals         domain.OrderTotals
	Client         domain.ClientInfo
	CouponID       string
	CreatedAt      time.Time
}

func (r *Record) Confirmation(replayed bool) *domain.Confirmation {
	return &domain.Confirmation{
		OrderID:   r.ID.String(),
		Status:    string(r.Status),
		Totals:    r.Totals,
		CreatedAt: r.CreatedAt,
		Replayed:  replayed,
	}
}

const EventOrderConfirmed = "OrderConfirmed"

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// OrderConfirmedEvent is the outbox payload published to Kafka.
type OrderConfirmedEvent struct {
	OrderID     string            `json:"order_id"`
	SessionID   string            `json:"session_id"`
	Items       []domain.CartLine `json:"items"`
	Mode        string            `json:"delivery_mode"`
	Date        string            `json:"date"`
	Time        string            `json:"time"`
	Total       money.Amount      `json:"total"`
	ClientName  string            `json:"client_name"`
	ClientEmail string            `json:"client_email,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type Repository interface {
	// Create stores the order and its outbox event in one transaction.
	Create(ctx context.Context, rec *Record, event *OutboxEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Record, error)
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	PurgeProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

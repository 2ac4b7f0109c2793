package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/orders"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrMalformedEvent marks messages that will never succeed and are skipped.
var ErrMalformedEvent = errors.New("malformed order event")

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Deduper remembers which orders were already mailed. Kafka delivers at
// least once and the outbox may publish the same event twice.
type Deduper interface {
	FirstSeen(ctx context.Context, orderID string) (bool, error)
}

type Consumer struct {
	reader MessageReader
	mailer Mailer
	dedup  Deduper
	logger *zap.Logger
}

func NewConsumer(mailer Mailer, dedup Deduper, logger *zap.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    "orders-confirmed",
		GroupID:  "order-notifier",
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(reader, mailer, dedup, logger)
}

func newConsumer(reader MessageReader, mailer Mailer, dedup Deduper, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: reader, mailer: mailer, dedup: dedup, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Error("error reading message", zap.Error(err))
		return
	}

	if err := c.handle(ctx, m.Value); err != nil {
		c.logger.Warn("order event not handled",
			zap.String("key", string(m.Key)),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var event orders.OrderConfirmedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.OrderID == "" {
		return fmt.Errorf("%w: missing order_id", ErrMalformedEvent)
	}
	if event.ClientEmail == "" {
		c.logger.Debug("no email for order, skipping", zap.String("order_id", event.OrderID))
		return nil
	}

	if c.dedup != nil {
		first, err := c.dedup.FirstSeen(ctx, event.OrderID)
		if err != nil {
			// sending twice beats not sending
			c.logger.Warn("dedup lookup failed", zap.String("order_id", event.OrderID), zap.Error(err))
		} else if !first {
			c.logger.Info("confirmation already sent, skipping", zap.String("order_id", event.OrderID))
			return nil
		}
	}

	msg, err := confirmationMessage(event)
	if err != nil {
		return err
	}
	if err := c.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send confirmation for %s: %w", event.OrderID, err)
	}

	c.logger.Info("confirmation sent", zap.String("order_id", event.OrderID))
	return nil
}

type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, orderID string) (bool, error) {
	return d.client.SetNX(ctx, "mail:confirmation:"+orderID, 1, d.ttl).Result()
}

package publisher

import (
	"context"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const TopicOrdersConfirmed = "orders-confirmed"

// EventStore is the slice of the orders repository the poller needs.
type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*orders.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	PurgeProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type OutboxPoller struct {
	batchSize int
	eventTick time.Duration
	purgeTick time.Duration
	retention time.Duration
	store     EventStore
	writer    MessageWriter
	logger    *zap.Logger
}

func NewOutboxPoller(store EventStore, logger *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  TopicOrdersConfirmed,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(store, w, logger)
}

func newOutboxPoller(store EventStore, writer MessageWriter, logger *zap.Logger) *OutboxPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxPoller{
		batchSize: 100,
		eventTick: time.Second,
		purgeTick: time.Hour,
		retention: 7 * 24 * time.Hour,
		store:     store,
		writer:    writer,
		logger:    logger,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	purgeTicker := time.NewTicker(p.purgeTick)
	defer eventTicker.Stop()
	defer purgeTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-purgeTicker.C:
			p.purgeProcessedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close flushes the underlying Kafka writer when it owns one.
func (p *OutboxPoller) Close() error {
	if w, ok := p.writer.(*kafka.Writer); ok {
		return w.Close()
	}
	return nil
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.store.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.logger.Warn("failed to publish outbox event", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}

		// a failure here means the event is sent again; the consumer tolerates duplicates
		if err := p.store.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Warn("failed to mark outbox event processed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		published++
	}
	return published
}

func (p *OutboxPoller) purgeProcessedEvents(ctx context.Context) {
	n, err := p.store.PurgeProcessedEvents(ctx, time.Now().Add(-p.retention))
	if err != nil {
		p.logger.Warn("failed to purge outbox events", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("purged processed outbox events", zap.Int64("count", n))
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *orders.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps one order on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

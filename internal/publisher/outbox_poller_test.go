package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/orders"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

type MockEventStore struct {
	Events       []*orders.OutboxEvent
	GetErr       error
	MarkErr      error
	PurgeErr     error
	ProcessedIDs []int64
	PurgedBefore time.Time
}

func (m *MockEventStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*orders.OutboxEvent, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if len(m.Events) > limit {
		return m.Events[:limit], nil
	}
	return m.Events, nil
}

func (m *MockEventStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockEventStore) PurgeProcessedEvents(_ context.Context, olderThan time.Time) (int64, error) {
	m.PurgedBefore = olderThan
	return 3, m.PurgeErr
}

type MockWriter struct {
	Messages []kafkaGo.Message
	// FailKey rejects messages with this key.
	FailKey string
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	for _, m := range msgs {
		if string(m.Key) == w.FailKey {
			return errors.New("broker unavailable")
		}
		w.Messages = append(w.Messages, m)
	}
	return nil
}

func newEvent(id int64, orderID string) *orders.OutboxEvent {
	return &orders.OutboxEvent{
		ID:          id,
		AggregateID: orderID,
		EventType:   orders.EventOrderConfirmed,
		Payload:     json.RawMessage(fmt.Sprintf(`{"order_id":%q}`, orderID)),
		CreatedAt:   time.Now(),
	}
}

func TestProcessUnpublishedEvents(t *testing.T) {
	store := &MockEventStore{Events: []*orders.OutboxEvent{newEvent(1, "order-1"), newEvent(2, "order-2")}}
	writer := &MockWriter{}
	poller := newOutboxPoller(store, writer, nil)

	n := poller.processUnpublishedEvents(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, store.ProcessedIDs)
	require.Len(t, writer.Messages, 2)
	assert.Equal(t, "order-1", string(writer.Messages[0].Key))
	assert.Equal(t, "event_type", writer.Messages[0].Headers[0].Key)
	assert.Equal(t, orders.EventOrderConfirmed, string(writer.Messages[0].Headers[0].Value))
}

func TestProcessUnpublishedEvents_PublishFailureLeavesEventPending(t *testing.T) {
	store := &MockEventStore{Events: []*orders.OutboxEvent{newEvent(1, "order-1"), newEvent(2, "order-2")}}
	writer := &MockWriter{FailKey: "order-1"}
	poller := newOutboxPoller(store, writer, nil)

	n := poller.processUnpublishedEvents(context.Background())

	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{2}, store.ProcessedIDs)
}

func TestProcessUnpublishedEvents_StoreErrors(t *testing.T) {
	store := &MockEventStore{GetErr: errors.New("database connection error")}
	writer := &MockWriter{}
	poller := newOutboxPoller(store, writer, nil)

	assert.Equal(t, 0, poller.processUnpublishedEvents(context.Background()))
	assert.Empty(t, writer.Messages)

	store = &MockEventStore{Events: []*orders.OutboxEvent{newEvent(1, "order-1")}, MarkErr: errors.New("deadlock")}
	poller = newOutboxPoller(store, writer, nil)

	assert.Equal(t, 0, poller.processUnpublishedEvents(context.Background()))
	assert.Len(t, writer.Messages, 1)
}

func TestPurgeProcessedEvents(t *testing.T) {
	store := &MockEventStore{}
	poller := newOutboxPoller(store, &MockWriter{}, nil)

	poller.purgeProcessedEvents(context.Background())

	assert.WithinDuration(t, time.Now().Add(-poller.retention), store.PurgedBefore, time.Second)
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("kafka container test")
	}
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, TopicOrdersConfirmed)

	store := &MockEventStore{Events: []*orders.OutboxEvent{newEvent(1, "order-123")}}
	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        TopicOrdersConfirmed,
		Balancer:     &kafkaGo.Hash{},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	defer writer.Close()

	poller := newOutboxPoller(store, writer, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    TopicOrdersConfirmed,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)

	assert.Equal(t, "order-123", string(msg.Key))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "order-123", payload["order_id"])
}

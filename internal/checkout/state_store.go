package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

// StateStore keeps one CheckoutState per session plus the confirmations of
// submitted orders, keyed by idempotency key.
type StateStore interface {
	// Load returns a fresh state at step 1 when none is stored.
	Load(ctx context.Context, sessionID string) (*domain.CheckoutState, error)
	Save(ctx context.Context, st *domain.CheckoutState) error
	Delete(ctx context.Context, sessionID string) error
	SaveReceipt(ctx context.Context, sessionID, key string, r *Receipt) error
	// Receipt returns nil when no order was confirmed for the key.
	Receipt(ctx context.Context, sessionID, key string) (*Receipt, error)
}

// Receipt records a confirmed submission. CartCleared tells a replay whether
// the cart still holds the submitted items.
type Receipt struct {
	Confirmation domain.Confirmation `json:"confirmation"`
	CartCleared  bool                `json:"cart_cleared"`
}

type MemoryStateStore struct {
	mu       sync.Mutex
	states   map[string][]byte
	receipts map[string]Receipt
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states:   make(map[string][]byte),
		receipts: make(map[string]Receipt),
	}
}

func (m *MemoryStateStore) Load(_ context.Context, sessionID string) (*domain.CheckoutState, error) {
	m.mu.Lock()
	data, ok := m.states[sessionID]
	m.mu.Unlock()
	if !ok {
		return domain.NewCheckoutState(sessionID), nil
	}
	return decodeState(data)
}

func (m *MemoryStateStore) Save(_ context.Context, st *domain.CheckoutState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal checkout state: %w", err)
	}
	m.mu.Lock()
	m.states[st.SessionID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStateStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.states, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStateStore) SaveReceipt(_ context.Context, sessionID, key string, r *Receipt) error {
	m.mu.Lock()
	m.receipts[receiptKey(sessionID, key)] = *r
	m.mu.Unlock()
	return nil
}

func (m *MemoryStateStore) Receipt(_ context.Context, sessionID, key string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[receiptKey(sessionID, key)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// RedisStateStore stores state as JSON under checkout:<session>. Receipts
// live as long as the order service's idempotency window.
type RedisStateStore struct {
	client     *redis.Client
	stateTTL   time.Duration
	receiptTTL time.Duration
}

func NewRedisStateStore(client *redis.Client, stateTTL, receiptTTL time.Duration) *RedisStateStore {
	if stateTTL <= 0 {
		stateTTL = 24 * time.Hour
	}
	if receiptTTL <= 0 {
		receiptTTL = 24 * time.Hour
	}
	return &RedisStateStore{client: client, stateTTL: stateTTL, receiptTTL: receiptTTL}
}

func (r *RedisStateStore) Load(ctx context.Context, sessionID string) (*domain.CheckoutState, error) {
	data, err := r.client.Get(ctx, stateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewCheckoutState(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkout state: %w", err)
	}
	return decodeState(data)
}

func (r *RedisStateStore) Save(ctx context.Context, st *domain.CheckoutState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal checkout state: %w", err)
	}
	if err := r.client.Set(ctx, stateKey(st.SessionID), data, r.stateTTL).Err(); err != nil {
		return fmt.Errorf("save checkout state: %w", err)
	}
	return nil
}

func (r *RedisStateStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, stateKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete checkout state: %w", err)
	}
	return nil
}

func (r *RedisStateStore) SaveReceipt(ctx context.Context, sessionID, key string, receipt *Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	if err := r.client.Set(ctx, receiptKey(sessionID, key), data, r.receiptTTL).Err(); err != nil {
		return fmt.Errorf("save receipt: %w", err)
	}
	return nil
}

func (r *RedisStateStore) Receipt(ctx context.Context, sessionID, key string) (*Receipt, error) {
	data, err := r.client.Get(ctx, receiptKey(sessionID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load receipt: %w", err)
	}
	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return &receipt, nil
}

func decodeState(data []byte) (*domain.CheckoutState, error) {
	var st domain.CheckoutState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal checkout state: %w", err)
	}
	if !st.CurrentStep.Valid() {
		st.CurrentStep = domain.StepCart
	}
	return &st, nil
}

func stateKey(sessionID string) string {
	return "checkout:" + sessionID
}

func receiptKey(sessionID, key string) string {
	return "checkout:receipt:" + sessionID + ":" + key
}

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrderClient struct {
	c *Client
}

func NewOrderClient(baseURL string, timeout time.Duration) *OrderClient {
	return &OrderClient{c: NewClient("orders", baseURL, timeout)}
}

// CreateOrder posts the order. The server answers a repeated key with the
// stored order and replayed=true.
func (o *OrderClient) CreateOrder(ctx context.Context, order domain.Order, key string) (*domain.Confirmation, error) {
	header := http.Header{}
	header.Set(HeaderIdempotencyKey, key)
	order.IdempotencyKey = key

	var conf domain.Confirmation
	if err := o.c.Do(ctx, "create_order", http.MethodPost, "/api/v1/orders", header, order, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

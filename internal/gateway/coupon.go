package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/coupon"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
)

type CouponValidateRequest struct {
	Code   string       `json:"code"`
	Amount money.Amount `json:"amount"`
}

type CouponApplyRequest struct {
	CouponID string `json:"coupon_id"`
	OrderID  string `json:"order_id"`
}

type CouponClient struct {
	c *Client
}

func NewCouponClient(baseURL string, timeout time.Duration) *CouponClient {
	return &CouponClient{c: NewClient("coupon", baseURL, timeout)}
}

func (cc *CouponClient) Validate(ctx context.Context, code string, amount money.Amount) (*coupon.Validation, error) {
	var v coupon.Validation
	err := cc.c.Do(ctx, "validate", http.MethodPost, "/api/v1/coupons/validate", nil,
		CouponValidateRequest{Code: code, Amount: amount}, &v)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (cc *CouponClient) Apply(ctx context.Context, couponID, orderID string) error {
	return cc.c.Do(ctx, "apply", http.MethodPost, "/api/v1/coupons/apply", nil,
		CouponApplyRequest{CouponID: couponID, OrderID: orderID}, nil)
}

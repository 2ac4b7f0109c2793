package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/address"
)

type AddressRequest struct {
	Address string `json:"address"`
	Zip     string `json:"zip"`
}

type ZipRequest struct {
	Zip string `json:"zip"`
}

type AddressClient struct {
	c *Client
}

func NewAddressClient(baseURL string, timeout time.Duration) *AddressClient {
	return &AddressClient{c: NewClient("address", baseURL, timeout)}
}

func (a *AddressClient) ValidateAddress(ctx context.Context, addr, zip string) (address.Result, error) {
	var res address.Result
	err := a.c.Do(ctx, "validate_address", http.MethodPost, "/api/v1/address/validate", nil,
		AddressRequest{Address: addr, Zip: zip}, &res)
	return res, err
}

func (a *AddressClient) ValidateZip(ctx context.Context, zip string) (address.Result, error) {
	var res address.Result
	err := a.c.Do(ctx, "validate_zip", http.MethodPost, "/api/v1/zip/validate", nil, ZipRequest{Zip: zip}, &res)
	return res, err
}

var _ address.Validator = (*AddressClient)(nil)

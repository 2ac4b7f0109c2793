// Package gateway holds the HTTP+JSON clients for the collaborators the
// checkout core calls when they run out of process.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 1 << 20

// ErrorBody is the JSON error envelope every collaborator returns.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type response struct {
	status int
	body   []byte
}

// Client is a JSON client for one collaborator. Calls are bounded by the
// client timeout and guarded by a circuit breaker that opens after five
// consecutive transient failures.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[response]
}

func NewClient(service, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
			Name:        service,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// client errors mean the collaborator is healthy
			IsSuccessful: func(err error) bool {
				return err == nil || !domain.IsRetryable(err)
			},
		}),
	}
}

// Do sends in as JSON and decodes a 2xx JSON body into out. Every failure is
// returned as *domain.ExternalServiceError.
func (c *Client) Do(ctx context.Context, op, method, path string, header http.Header, in, out any) error {
	res, err := c.breaker.Execute(func() (response, error) {
		return c.roundTrip(ctx, op, method, path, header, in)
	})
	if err != nil {
		var ext *domain.ExternalServiceError
		if errors.As(err, &ext) {
			return ext
		}
		// gobreaker.ErrOpenState and ErrTooManyRequests
		return c.fail(op, 0, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return c.fail(op, res.status, fmt.Errorf("invalid JSON response: %w", err))
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, header http.Header, in any) (response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return response{}, fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, c.fail(op, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return response{}, c.fail(op, 0, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{}, c.fail(op, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb ErrorBody
		if json.Unmarshal(b, &eb) == nil && eb.Error != "" {
			return response{}, c.fail(op, resp.StatusCode, errors.New(eb.Error))
		}
		return response{}, c.fail(op, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}

	return response{status: resp.StatusCode, body: b}, nil
}

func (c *Client) fail(op string, status int, err error) *domain.ExternalServiceError {
	return &domain.ExternalServiceError{Service: c.service, Op: op, StatusCode: status, Err: err}
}

// State reports the breaker state, for health output.
func (c *Client) State() string {
	return c.breaker.State().String()
}

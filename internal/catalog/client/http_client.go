package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
	"github.com/tair/marketplace-catalog/pkg/logger"
)

const maxBodyBytes = 32 << 20

// HTTPClient calls the marketplace REST API
type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *CircuitBreaker
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.client = c }
}

// WithCircuitBreaker guards every call with cb
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(h *HTTPClient) { h.breaker = cb }
}

// NewHTTPClient creates a client for the API rooted at baseURL
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListProducts fetches every listing. The caller's context bounds the call.
func (c *HTTPClient) ListProducts(ctx context.Context) (domain.ListResponse, error) {
	var resp domain.ListResponse
	call := func() error {
		var err error
		resp, err = c.listProducts(ctx)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(call)
	} else {
		err = call()
	}
	if err != nil {
		return domain.ListResponse{}, err
	}
	return resp, nil
}

func (c *HTTPClient) listProducts(ctx context.Context) (domain.ListResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products", nil)
	if err != nil {
		return domain.ListResponse{}, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		return domain.ListResponse{}, errors.Wrap(err, "failed to list products")
	}
	defer res.Body.Close()

	logger.Debug(ctx).
		Int("status", res.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Catalog upstream responded")

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return domain.ListResponse{}, errors.Newf("catalog upstream returned status %d", res.StatusCode)
	}

	var out domain.ListResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxBodyBytes)).Decode(&out); err != nil {
		return domain.ListResponse{}, domain.MarkMalformed(errors.Wrap(err, "failed to decode product listing"))
	}
	return out, nil
}

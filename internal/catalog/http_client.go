package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_cart/cartsync/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker[Product]
}

// NewHTTPClient talks to the catalog at baseURL. Requests are traced and go
// through a circuit breaker; a 404 does not count as a failure.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New[Product](circuitbreaker.Settings{
			Name: "catalog",
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrProductNotFound) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name, from, to string) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name), zap.String("from", from), zap.String("to", to))
			},
		}),
	}
}

func (c *HTTPClient) Product(ctx context.Context, productID string) (Product, error) {
	p, err := c.breaker.Execute(func() (Product, error) {
		return c.fetch(ctx, productID)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return Product{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return p, err
}

func (c *HTTPClient) fetch(ctx context.Context, productID string) (Product, error) {
	endpoint := c.baseURL + "/products/" + url.PathEscape(productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Product{}, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Product{}, ctx.Err()
		}
		return Product{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Product{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Product{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	if p.ID == "" {
		p.ID = productID
	}
	return p, nil
}

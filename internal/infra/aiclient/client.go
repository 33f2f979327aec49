// Package aiclient wraps HTTP calls to the external AI microservice:
// transaction categorization, batch categorization, feedback relay and
// document extraction (OCR).
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/infra/resilience"
)

var tracer = otel.Tracer("aiclient")

// Client calls the AI service. It implements port.Categorizer and
// port.DocumentExtractor. One shared *http.Client is injected; the client
// never builds transports of its own.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// New creates an AI service client.
func New(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

// Health probes GET /health. A non-2xx status or transport error means the
// service is unavailable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ai service health returned status %d", resp.StatusCode)
	}
	return nil
}

// postJSON marshals payload, POSTs it to path and decodes the response into
// out (unless out is nil). Non-2xx statuses are errors.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Warn("ai service: non-2xx response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return fmt.Errorf("ai service %s returned status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// wrapErr folds a failed call into the domain error taxonomy. Breaker
// rejections and deadline hits keep their specific type inside the generic
// external-service wrapper, so callers can degrade on any external failure
// while the HTTP layer still maps the precise cause.
func (c *Client) wrapErr(service string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		err = &domain.ErrCircuitOpen{Service: service}
	case errors.Is(err, context.DeadlineExceeded):
		err = &domain.ErrTimeout{Operation: service}
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}

// clampConfidence forces a confidence score into [0,1]. Out-of-range values
// are a contract violation of the remote service; they are clamped, not
// silently accepted.
func (c *Client) clampConfidence(v float64) float64 {
	if v < 0 {
		c.logger.Warn("ai service: confidence below range, clamping", zap.Float64("confidence", v))
		return 0
	}
	if v > 1 {
		c.logger.Warn("ai service: confidence above range, clamping", zap.Float64("confidence", v))
		return 1
	}
	return v
}

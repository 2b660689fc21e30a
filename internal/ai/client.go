package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/scamshield/scamshield/internal/circuitbreaker"
	"github.com/scamshield/scamshield/internal/metrics"
)

// Client calls the LLM gateway for explain/classify. A nil or unconfigured
// Client is valid and always serves fallbacks.
type Client struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewClient creates an AI gateway client. An empty baseURL disables remote
// calls entirely; all operations serve fallback content.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New(3, 60*time.Second),
		logger:  logger,
	}
}

// Explain produces a narrative explanation for the payment. Never fails:
// any error degrades to FallbackExplanation.
func (c *Client) Explain(ctx context.Context, features, signals map[string]any) *Explanation {
	if c == nil || c.baseURL == "" {
		return FallbackExplanation()
	}

	var out Explanation
	err := c.post(ctx, "/ai/explain", map[string]any{
		"features": features,
		"signals":  signals,
	}, &out)
	if err != nil {
		metrics.AIFallbacksTotal.WithLabelValues("explain").Inc()
		c.logger.Warn("ai explain failed, serving fallback", "error", err)
		return FallbackExplanation()
	}
	if out.Summary == "" {
		out.Summary = "Potential scam indicators detected."
	}
	return &out
}

// Classify labels the likely scam type. Returns nil on any failure; a nil
// classification never blocks gating.
func (c *Client) Classify(ctx context.Context, features, signals map[string]any) *Classification {
	if c == nil || c.baseURL == "" {
		return nil
	}

	var out Classification
	err := c.post(ctx, "/ai/classify", map[string]any{
		"features": features,
		"signals":  signals,
	}, &out)
	if err != nil {
		metrics.AIFallbacksTotal.WithLabelValues("classify").Inc()
		c.logger.Warn("ai classify failed", "error", err)
		return nil
	}
	if out.Label == "" {
		return nil
	}
	return &out
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	const key = "ai_gateway"
	if !c.breaker.Allow(key) {
		return fmt.Errorf("circuit open")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.Failure(key)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.breaker.Failure(key)
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.breaker.Failure(key)
		return err
	}
	c.breaker.Success(key)
	return nil
}

// Package verify forwards scraped records to the external verification service and parses its claims.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// ErrNotConfigured is recorded when verified mode runs without an endpoint.
var ErrNotConfigured = errors.New("verification endpoint not configured")

// Config controls the verification call.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Client posts records to the verification endpoint.
type Client struct {
	sink   scrape.NotificationSink
	cfg    Config
	logger *zap.Logger
}

// NewClient builds a Client.
func NewClient(sink scrape.NotificationSink, cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{sink: sink, cfg: cfg, logger: logger}
}

// Verify posts record and returns the outcome. Failures are reported in the outcome, never as errors.
func (c *Client) Verify(ctx context.Context, record scrape.Record) scrape.VerificationOutcome {
	if c.sink == nil || strings.TrimSpace(c.cfg.Endpoint) == "" {
		metrics.ObserveVerification("unconfigured")
		return scrape.VerificationOutcome{Error: ErrNotConfigured.Error(), Claims: []scrape.Claim{}}
	}
	resp, err := c.sink.Post(ctx, c.cfg.Endpoint, record, c.cfg.Timeout)
	if err != nil {
		c.logger.Warn("verification request failed", zap.String("url", record.URL), zap.Error(err))
		metrics.ObserveVerification("transport_error")
		return scrape.VerificationOutcome{Error: err.Error(), Claims: []scrape.Claim{}}
	}
	outcome := scrape.VerificationOutcome{
		StatusCode:  resp.StatusCode,
		RawResponse: string(resp.Body),
		Claims:      []scrape.Claim{},
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("verification endpoint returned non-200",
			zap.String("url", record.URL),
			zap.Int("status", resp.StatusCode),
		)
		metrics.ObserveVerification("http_error")
		return outcome
	}
	outcome.Success = true
	outcome.Claims = ParseClaims(responseText(resp.Body))
	c.logger.Debug("verification completed",
		zap.String("url", record.URL),
		zap.Int("claims", len(outcome.Claims)),
	)
	metrics.ObserveVerification("success")
	return outcome
}

// responseText unwraps the common JSON envelopes around the claims text; other bodies are used as-is.
func responseText(body []byte) string {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		var list []map[string]any
		if err := json.Unmarshal(body, &list); err != nil || len(list) == 0 {
			return string(body)
		}
		envelope = list[0]
	}
	for _, key := range []string{"output", "results", "result", "text", "response"} {
		if s, ok := envelope[key].(string); ok && s != "" {
			return s
		}
	}
	return string(body)
}

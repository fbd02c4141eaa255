// Package notify posts JSON payloads to remote endpoints and delivers finished records to the result webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// maxResponseBytes caps how much of a response body is kept.
const maxResponseBytes = 1 << 20

// HTTPSink implements scrape.NotificationSink over HTTP POST. Any status code is a successful transport; callers
// interpret it.
type HTTPSink struct {
	client    *http.Client
	userAgent string
}

// NewHTTPSink builds a sink. A nil client gets a traced default.
func NewHTTPSink(client *http.Client, userAgent string) *HTTPSink {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPSink{client: client, userAgent: userAgent}
}

// Post marshals payload as JSON and posts it to url within timeout.
func (s *HTTPSink) Post(ctx context.Context, url string, payload any, timeout time.Duration) (scrape.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return scrape.Response{}, fmt.Errorf("marshal payload: %w", err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return scrape.Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return scrape.Response{}, fmt.Errorf("post %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return scrape.Response{StatusCode: resp.StatusCode}, fmt.Errorf("read response: %w", err)
	}
	return scrape.Response{StatusCode: resp.StatusCode, Body: data}, nil
}

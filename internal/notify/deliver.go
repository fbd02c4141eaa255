package notify

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Status values carried in webhook payloads.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Payload is the body posted to the result webhook.
type Payload struct {
	Status        string        `json:"status"`
	URL           string        `json:"url"`
	Result        scrape.Record `json:"result"`
	Timestamp     string        `json:"timestamp"`
	CorrelationID string        `json:"correlationId,omitempty"`
}

// Config controls result delivery.
type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

// Deliverer posts finished records to the result webhook. It is attempt-once and never returns an error.
type Deliverer struct {
	sink   scrape.NotificationSink
	cfg    Config
	clock  scrape.Clock
	logger *zap.Logger
}

// NewDeliverer builds a Deliverer.
func NewDeliverer(sink scrape.NotificationSink, cfg Config, clock scrape.Clock, logger *zap.Logger) *Deliverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{sink: sink, cfg: cfg, clock: clock, logger: logger}
}

// Deliver posts record with correlationID. A missing webhook skips delivery.
func (d *Deliverer) Deliver(ctx context.Context, record scrape.Record, correlationID string) {
	logger := d.logger.With(zap.String("url", record.URL), zap.String("correlation_id", correlationID))
	if d.sink == nil || strings.TrimSpace(d.cfg.WebhookURL) == "" {
		logger.Info("no result webhook configured, skipping delivery")
		metrics.ObserveNotification("skipped")
		return
	}
	status := StatusCompleted
	if record.Failed() {
		status = StatusFailed
	}
	payload := Payload{
		Status:        status,
		URL:           record.URL,
		Result:        record.Clone(),
		Timestamp:     d.clock.Now().Format(time.RFC3339),
		CorrelationID: correlationID,
	}
	resp, err := d.sink.Post(ctx, d.cfg.WebhookURL, payload, d.cfg.Timeout)
	if err != nil {
		logger.Warn("result delivery failed", zap.Error(err))
		metrics.ObserveNotification("transport_error")
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("result webhook returned non-2xx", zap.Int("status", resp.StatusCode))
		metrics.ObserveNotification("http_error")
		return
	}
	logger.Info("result delivered", zap.String("status", status), zap.Int("http_status", resp.StatusCode))
	metrics.ObserveNotification("success")
}

// Discard is a delivery that does nothing. It is used when the caller receives the record directly.
type Discard struct{}

// Deliver does nothing.
func (Discard) Deliver(context.Context, scrape.Record, string) {}

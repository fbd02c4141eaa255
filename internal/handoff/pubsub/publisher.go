// Package pubsub hands jobs to out-of-band workers through a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Attribute keys set on every job message.
const (
	AttrJobID         = "job_id"
	AttrCorrelationID = "correlation_id"
)

// Handoff publishes jobs as JSON messages.
type Handoff struct {
	topic   *pubsub.Topic
	timeout time.Duration
}

// New creates a Handoff for the provided topic. timeout bounds the wait for the publish acknowledgment.
func New(topic *pubsub.Topic, timeout time.Duration) *Handoff {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handoff{topic: topic, timeout: timeout}
}

// Schedule publishes job and waits for the server to acknowledge the publish, not for the job to run.
func (h *Handoff) Schedule(ctx context.Context, job scrape.Job) error {
	if h.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{AttrJobID: job.ID}}
	if job.Request.CorrelationID != "" {
		msg.Attributes[AttrCorrelationID] = job.Request.CorrelationID
	}
	otel.GetTextMapPropagator().Inject(ctx, &Carrier{attrs: msg.Attributes})

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	result := h.topic.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	return nil
}

// Stop flushes pending publishes and stops the topic's background goroutines.
func (h *Handoff) Stop() {
	if h.topic != nil {
		h.topic.Stop()
	}
}

// Carrier implements propagation.TextMapCarrier over Pub/Sub attributes.
type Carrier struct {
	attrs map[string]string
}

// NewCarrier wraps attrs. A nil map yields an empty carrier that drops writes.
func NewCarrier(attrs map[string]string) *Carrier {
	return &Carrier{attrs: attrs}
}

// Get returns the value for key.
func (c *Carrier) Get(key string) string {
	return c.attrs[key]
}

// Set stores value under key.
func (c *Carrier) Set(key, value string) {
	if c.attrs == nil {
		return
	}
	c.attrs[key] = value
}

// Keys lists the stored keys.
func (c *Carrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}

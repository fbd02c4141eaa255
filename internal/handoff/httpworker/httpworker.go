// Package httpworker hands jobs to a secondary instance over HTTP. The secondary's /v1/jobs endpoint queues the job
// and answers 202 immediately.
package httpworker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// JobsPath is appended to the worker base URL.
const JobsPath = "/v1/jobs"

// Handoff posts jobs to a secondary worker.
type Handoff struct {
	sink     scrape.NotificationSink
	endpoint string
	timeout  time.Duration
}

// New builds a Handoff for the worker at baseURL.
func New(sink scrape.NotificationSink, baseURL string, timeout time.Duration) (*Handoff, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid worker url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handoff{
		sink:     sink,
		endpoint: strings.TrimRight(u.String(), "/") + JobsPath,
		timeout:  timeout,
	}, nil
}

// Endpoint returns the URL jobs are posted to.
func (h *Handoff) Endpoint() string {
	return h.endpoint
}

// Schedule posts job and requires a 2xx answer within the handoff timeout.
func (h *Handoff) Schedule(ctx context.Context, job scrape.Job) error {
	resp, err := h.sink.Post(ctx, h.endpoint, job, h.timeout)
	if err != nil {
		return fmt.Errorf("post job %s: %w", job.ID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("worker rejected job %s: status %d", job.ID, resp.StatusCode)
	}
	return nil
}

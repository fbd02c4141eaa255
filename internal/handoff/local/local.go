// Package local hands jobs to the in-process worker pool through a bounded queue.
package local

import (
	"context"
	"fmt"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Enqueuer is the non-blocking side of the worker queue.
type Enqueuer interface {
	TryEnqueue(job scrape.Job) error
}

// Handoff schedules jobs onto the local queue without waiting for capacity.
type Handoff struct {
	queue Enqueuer
}

// New builds a local Handoff.
func New(queue Enqueuer) *Handoff {
	return &Handoff{queue: queue}
}

// Schedule enqueues job. A full or closed queue is a scheduling failure.
func (h *Handoff) Schedule(_ context.Context, job scrape.Job) error {
	if h.queue == nil {
		return fmt.Errorf("local queue is not configured")
	}
	if err := h.queue.TryEnqueue(job); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

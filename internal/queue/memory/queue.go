// Package memory provides the bounded in-process job queue consumed by the local worker pool.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

var (
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned by TryEnqueue when no capacity is left.
	ErrFull = errors.New("queue full")
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch       chan scrape.Job
	done     chan struct{}
	doneOnce sync.Once
	closeMu  sync.RWMutex
	closed   bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan scrape.Job, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a job into the queue, waiting for capacity until ctx ends or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, job scrape.Job) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- job:
		return nil
	}
}

// TryEnqueue pushes a job only if there is capacity right now.
func (q *Queue) TryEnqueue(job scrape.Job) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrFull
	}
}

// Dequeue pops the next job, respecting context cancellation. Jobs buffered before Close are still returned.
func (q *Queue) Dequeue(ctx context.Context) (scrape.Job, error) {
	select {
	case <-ctx.Done():
		return scrape.Job{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return scrape.Job{}, ErrClosed
		}
		return job, nil
	}
}

// Len reports the number of buffered jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting jobs and closes the channel for shutdown. It is safe to call more than once.
func (q *Queue) Close() {
	q.doneOnce.Do(func() { close(q.done) })
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

// Package dispatcher acknowledges scrape requests and runs them out of band: first through the configured
// handoff, and when that cannot be scheduled, on an in-process background task.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/background"
	"github.com/JakeFAU/realtime-post-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-post-scraper/internal/orchestrator"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
	"github.com/JakeFAU/realtime-post-scraper/internal/worker"
)

// AckMessage is the message of every accepted acknowledgment.
const AckMessage = "Scraping request received, processing in background"

// ErrShuttingDown is the error carried by records of jobs that arrive after Drain.
var ErrShuttingDown = errors.New("service shutting down, job not processed")

// Route says where a dispatched job went.
type Route string

// Routes, also used as the dispatch metric label.
const (
	RouteHandoff  Route = "handoff"
	RouteFallback Route = "fallback"
	RouteDropped  Route = "dropped"
)

// Processor executes a job in process.
type Processor interface {
	Process(ctx context.Context, job scrape.Job) scrape.Record
}

// Enqueuer is the non-blocking producer side of the local queue.
type Enqueuer interface {
	TryEnqueue(job scrape.Job) error
}

// Config tunes dispatch.
type Config struct {
	HandoffTimeout time.Duration
}

// Dependencies are the collaborators of a Dispatcher. Handoff, Queue, Workers and Delivery may be empty. Delivery
// receives the error record of a job that could not be scheduled at all; Method tags that record.
type Dependencies struct {
	Handoff   scrape.Handoff
	Processor Processor
	Group     *background.Group
	Queue     Enqueuer
	Workers   []*worker.Worker
	Delivery  orchestrator.Delivery
	Method    string
	IDs       scrape.IDGenerator
	Clock     scrape.Clock
	Logger    *zap.Logger
}

// Dispatcher implements the accept / handoff / fallback protocol.
type Dispatcher struct {
	cfg       Config
	handoff   scrape.Handoff
	processor Processor
	group     *background.Group
	queue     Enqueuer
	workers   []*worker.Worker
	delivery  orchestrator.Delivery
	method    string
	ids       scrape.IDGenerator
	clock     scrape.Clock
	logger    *zap.Logger

	poolMu      sync.Mutex
	poolWG      sync.WaitGroup
	poolStopped bool
}

// New creates a Dispatcher.
func New(cfg Config, deps Dependencies) (*Dispatcher, error) {
	switch {
	case deps.Processor == nil:
		return nil, errors.New("processor is required")
	case deps.Group == nil:
		return nil, errors.New("background group is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if cfg.HandoffTimeout <= 0 {
		cfg.HandoffTimeout = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:       cfg,
		handoff:   deps.Handoff,
		processor: deps.Processor,
		group:     deps.Group,
		queue:     deps.Queue,
		workers:   deps.Workers,
		delivery:  deps.Delivery,
		method:    deps.Method,
		ids:       deps.IDs,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}, nil
}

// Accept turns a validated request into a job and its acknowledgment. It does no work on the job.
func (d *Dispatcher) Accept(req scrape.Request) (scrape.Job, scrape.Ack, error) {
	if req.URL == "" {
		metrics.ObserveRequest("rejected")
		return scrape.Job{}, scrape.Ack{}, scrape.ErrURLRequired
	}
	id, err := d.ids.NewID()
	if err != nil {
		return scrape.Job{}, scrape.Ack{}, fmt.Errorf("generate job id: %w", err)
	}
	now := d.clock.Now()
	job := scrape.Job{ID: id, Request: req, Submitted: now}
	ack := scrape.Ack{
		Status:        "accepted",
		Message:       AckMessage,
		URL:           req.URL,
		CorrelationID: req.CorrelationID,
		JobID:         id,
		Timestamp:     now.UTC().Format(time.RFC3339Nano),
	}
	metrics.ObserveRequest("accepted")
	return job, ack, nil
}

// Dispatch hands job to the out-of-band worker, or runs it on the background group when the handoff cannot be
// scheduled. It returns as soon as the job is scheduled either way. Callers must have sent the acknowledgment
// already.
func (d *Dispatcher) Dispatch(ctx context.Context, job scrape.Job) Route {
	logger := d.logger.With(zap.String("job_id", job.ID), zap.String("url", job.Request.URL))
	if d.handoff != nil {
		hctx, cancel := context.WithTimeout(ctx, d.cfg.HandoffTimeout)
		err := d.handoff.Schedule(hctx, job)
		cancel()
		if err == nil {
			logger.Debug("job handed off")
			metrics.ObserveDispatch(string(RouteHandoff))
			return RouteHandoff
		}
		logger.Warn("handoff failed, running in process", zap.Error(err))
	}

	return d.Detach(ctx, job)
}

// Detach runs job on the background group without trying the handoff. It is the entry for jobs that already
// arrived through a handoff, so they are never handed off twice.
func (d *Dispatcher) Detach(ctx context.Context, job scrape.Job) Route {
	err := d.group.Go(ctx, "scrape "+job.ID, func(taskCtx context.Context) {
		d.processor.Process(taskCtx, job)
	})
	if err != nil {
		d.drop(ctx, job, err)
		return RouteDropped
	}
	metrics.ObserveDispatch(string(RouteFallback))
	return RouteFallback
}

// drop delivers an error record for a job nothing will run.
func (d *Dispatcher) drop(ctx context.Context, job scrape.Job, cause error) {
	d.logger.Error("job dropped",
		zap.String("job_id", job.ID),
		zap.String("url", job.Request.URL),
		zap.Error(cause),
	)
	metrics.ObserveDispatch(string(RouteDropped))
	if d.delivery == nil {
		return
	}
	record := scrape.NewErrorRecord(job.Request.URL, d.method, ErrShuttingDown)
	d.delivery.Deliver(context.WithoutCancel(ctx), record, job.Request.CorrelationID)
}

// Enqueue puts job on the local worker queue without waiting for capacity.
func (d *Dispatcher) Enqueue(job scrape.Job) error {
	if d.queue == nil {
		return errors.New("local queue is not configured")
	}
	if err := d.queue.TryEnqueue(job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Run starts all workers and blocks until they return. Workers ignore ctx cancellation and stop only once the
// queue is closed and empty, so jobs accepted before shutdown still run with a live context. ctx only carries values.
func (d *Dispatcher) Run(ctx context.Context) {
	d.poolMu.Lock()
	if d.poolStopped {
		d.poolMu.Unlock()
		return
	}
	workerCtx := context.WithoutCancel(ctx)
	for _, w := range d.workers {
		d.poolWG.Add(1)
		go func(wk *worker.Worker) {
			defer d.poolWG.Done()
			wk.Run(workerCtx)
		}(w)
	}
	d.poolMu.Unlock()
	d.poolWG.Wait()
}

// Drain waits for the worker pool and in-process fallback tasks, bounded by ctx. The queue must be closed first
// or the workers never return. The process must not exit before Drain returns.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.poolMu.Lock()
	d.poolStopped = true
	d.poolMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.poolWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("drain worker pool: %w", ctx.Err())
	}
	if err := d.group.Wait(ctx); err != nil {
		return fmt.Errorf("drain dispatcher: %w", err)
	}
	return nil
}

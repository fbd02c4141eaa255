// Package worker runs scrape jobs: the Processor executes one job, the Worker consumes the local queue.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/logging"
	"github.com/JakeFAU/realtime-post-scraper/internal/orchestrator"
	"github.com/JakeFAU/realtime-post-scraper/internal/queue/memory"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Runner executes one extraction request.
type Runner interface {
	Run(ctx context.Context, req scrape.Request, delivery orchestrator.Delivery) scrape.Record
}

// Processor runs a job through the orchestrator and delivers the result.
type Processor struct {
	runner   Runner
	delivery orchestrator.Delivery
	method   string
	logger   *zap.Logger
}

// NewProcessor builds a Processor. method tags error records produced when the runner itself panics.
func NewProcessor(runner Runner, delivery orchestrator.Delivery, method string, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{runner: runner, delivery: delivery, method: method, logger: logger}
}

// Process runs job and returns its record. It never panics.
func (p *Processor) Process(ctx context.Context, job scrape.Job) (record scrape.Record) {
	logger := p.logger.With(zap.String("job_id", job.ID), zap.String("url", job.Request.URL))
	ctx = logging.NewContext(ctx, logger)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("job panicked", zap.String("panic", fmt.Sprint(rec)))
			record = scrape.NewErrorRecord(job.Request.URL, p.method, fmt.Errorf("internal error: %v", rec))
		}
	}()

	logger.Debug("processing job")
	record = p.runner.Run(ctx, job.Request, p.delivery)
	if record.Failed() {
		logger.Info("job finished with error record", zap.String("error", record.Error))
	} else {
		logger.Info("job finished", zap.String("page_type", string(record.PageType)), zap.Bool("saved", record.SavedToStore))
	}
	return record
}

// Source is the consuming side of the local queue.
type Source interface {
	Dequeue(ctx context.Context) (scrape.Job, error)
}

// Worker consumes queue items and processes them one at a time.
type Worker struct {
	id        int
	source    Source
	processor *Processor
	logger    *zap.Logger
}

// New constructs a Worker.
func New(id int, source Source, processor *Processor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{id: id, source: source, processor: processor, logger: logger.With(zap.Int("worker", id))}
}

// Run blocks, consuming jobs until ctx finishes or the queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				w.logger.Debug("worker stopping", zap.Error(err))
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", job.ID))
		w.processor.Process(ctx, job)
	}
}

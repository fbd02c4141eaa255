package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-post-scraper/internal/background"
	"github.com/JakeFAU/realtime-post-scraper/internal/handoff"
	"github.com/JakeFAU/realtime-post-scraper/internal/handoff/local"
	"github.com/JakeFAU/realtime-post-scraper/internal/orchestrator"
	"github.com/JakeFAU/realtime-post-scraper/internal/queue/memory"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
	"github.com/JakeFAU/realtime-post-scraper/internal/worker"
)

type fakeProcessor struct {
	mu      sync.Mutex
	jobs    []scrape.Job
	release chan struct{}
}

func (p *fakeProcessor) Process(ctx context.Context, job scrape.Job) scrape.Record {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()
	return scrape.Record{URL: job.Request.URL, Content: &scrape.Content{}}
}

func (p *fakeProcessor) Jobs() []scrape.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]scrape.Job(nil), p.jobs...)
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time                       { return c.now }
func (c fixedClock) Sleep(context.Context, time.Duration) {}

type recordingHandoff struct {
	mu   sync.Mutex
	jobs []scrape.Job
	err  error
}

func (h *recordingHandoff) Schedule(ctx context.Context, job scrape.Job) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("handoff called without deadline")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job)
	return h.err
}

func newDispatcher(t *testing.T, h scrape.Handoff, p Processor, extra func(*Dependencies)) *Dispatcher {
	t.Helper()
	deps := Dependencies{
		Handoff:   h,
		Processor: p,
		Group:     background.New(2, nil),
		IDs:       fixedIDs{id: "job-1"},
		Clock:     fixedClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	if extra != nil {
		extra(&deps)
	}
	d, err := New(Config{HandoffTimeout: time.Second}, deps)
	require.NoError(t, err)
	return d
}

func TestAccept(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, nil, &fakeProcessor{}, nil)
	job, ack, err := d.Accept(scrape.Request{URL: "https://x.com/u/status/1", CorrelationID: "chat-1"})
	require.NoError(t, err)

	require.Equal(t, "job-1", job.ID)
	require.Equal(t, "accepted", ack.Status)
	require.Equal(t, AckMessage, ack.Message)
	require.Equal(t, "chat-1", ack.CorrelationID)
	require.Equal(t, "job-1", ack.JobID)
	require.Equal(t, "2025-01-02T03:04:05Z", ack.Timestamp)

	_, _, err = d.Accept(scrape.Request{})
	require.ErrorIs(t, err, scrape.ErrURLRequired)
}

func TestDispatchPrefersHandoff(t *testing.T) {
	t.Parallel()

	h := &recordingHandoff{}
	p := &fakeProcessor{}
	d := newDispatcher(t, h, p, nil)

	route := d.Dispatch(context.Background(), scrape.Job{ID: "job-1", Request: scrape.Request{URL: "https://a.example"}})
	require.Equal(t, RouteHandoff, route)
	require.NoError(t, d.Drain(context.Background()))
	require.Len(t, h.jobs, 1)
	require.Empty(t, p.Jobs())
}

func TestDispatchFallsBackWhenHandoffFails(t *testing.T) {
	t.Parallel()

	p := &fakeProcessor{release: make(chan struct{})}
	d := newDispatcher(t, &recordingHandoff{err: errors.New("worker unreachable")}, p, nil)

	route := d.Dispatch(context.Background(), scrape.Job{ID: "job-1", Request: scrape.Request{URL: "https://a.example"}})
	require.Equal(t, RouteFallback, route)
	require.Empty(t, p.Jobs(), "fallback must not run inline")

	close(p.release)
	require.NoError(t, d.Drain(context.Background()))
	require.Len(t, p.Jobs(), 1)
}

func TestDispatchWithNoneHandoff(t *testing.T) {
	t.Parallel()

	p := &fakeProcessor{}
	d := newDispatcher(t, handoff.None{}, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	route := d.Dispatch(ctx, scrape.Job{ID: "job-1", Request: scrape.Request{URL: "https://a.example"}})
	cancel()
	require.Equal(t, RouteFallback, route)
	require.NoError(t, d.Drain(context.Background()))
	require.Len(t, p.Jobs(), 1)
}

type recordingDelivery struct {
	mu      sync.Mutex
	records []scrape.Record
	ids     []string
}

func (r *recordingDelivery) Deliver(_ context.Context, record scrape.Record, correlationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	r.ids = append(r.ids, correlationID)
}

func TestDispatchDropsAfterDrainAndDeliversError(t *testing.T) {
	t.Parallel()

	delivery := &recordingDelivery{}
	d := newDispatcher(t, nil, &fakeProcessor{}, func(deps *Dependencies) {
		deps.Delivery = delivery
		deps.Method = "selenium_webdriver"
	})
	require.NoError(t, d.Drain(context.Background()))

	late := scrape.Job{ID: "late", Request: scrape.Request{URL: "https://a.example", CorrelationID: "chat-7"}}
	require.Equal(t, RouteDropped, d.Dispatch(context.Background(), late))

	require.Len(t, delivery.records, 1)
	record := delivery.records[0]
	require.True(t, record.Failed())
	require.Equal(t, ErrShuttingDown.Error(), record.Error)
	require.Equal(t, "https://a.example", record.URL)
	require.Equal(t, "selenium_webdriver", record.ScrapingMethod)
	require.Equal(t, []string{"chat-7"}, delivery.ids)
}

type ctxRunner struct {
	mu      sync.Mutex
	urls    []string
	ctxErrs []error
	started chan struct{}
	release chan struct{}
}

func (r *ctxRunner) Run(ctx context.Context, req scrape.Request, _ orchestrator.Delivery) scrape.Record {
	r.started <- struct{}{}
	<-r.release
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, req.URL)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return scrape.Record{URL: req.URL, Content: &scrape.Content{}}
}

func TestShutdownRunsEveryQueuedJob(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(4)
	runner := &ctxRunner{started: make(chan struct{}, 2), release: make(chan struct{})}
	proc := worker.NewProcessor(runner, nil, "selenium_webdriver", nil)
	d := newDispatcher(t, local.New(queue), proc, func(deps *Dependencies) {
		deps.Queue = queue
		deps.Workers = []*worker.Worker{worker.New(1, queue, proc, nil)}
	})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(runDone)
	}()

	require.Equal(t, RouteHandoff, d.Dispatch(ctx, scrape.Job{ID: "a", Request: scrape.Request{URL: "https://a.example"}}))
	require.Equal(t, RouteHandoff, d.Dispatch(ctx, scrape.Job{ID: "b", Request: scrape.Request{URL: "https://b.example"}}))
	<-runner.started

	// Same order as the service shutdown: signal, close the queue, drain.
	cancel()
	queue.Close()
	drainErr := make(chan error, 1)
	go func() { drainErr <- d.Drain(context.Background()) }()

	select {
	case err := <-drainErr:
		t.Fatalf("drain returned while a job was still running: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	select {
	case err := <-drainErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not return after the jobs finished")
	}
	<-runDone

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Equal(t, []string{"https://a.example", "https://b.example"}, runner.urls)
	require.Equal(t, []error{nil, nil}, runner.ctxErrs)
}

func TestDrainRespectsDeadline(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(1)
	runner := &ctxRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	proc := worker.NewProcessor(runner, nil, "selenium_webdriver", nil)
	d := newDispatcher(t, local.New(queue), proc, func(deps *Dependencies) {
		deps.Queue = queue
		deps.Workers = []*worker.Worker{worker.New(1, queue, proc, nil)}
	})
	go d.Run(context.Background())

	require.Equal(t, RouteHandoff, d.Dispatch(context.Background(), scrape.Job{ID: "a", Request: scrape.Request{URL: "https://a.example"}}))
	<-runner.started
	queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Drain(ctx), context.DeadlineExceeded)
	close(runner.release)
}

func TestLocalHandoffFeedsWorkerPool(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(1)
	p := &fakeProcessor{}
	proc := worker.NewProcessor(runnerFunc(func(req scrape.Request) { p.Process(context.Background(), scrape.Job{Request: req}) }),
		nil, "selenium_webdriver", nil)
	d := newDispatcher(t, local.New(queue), p, func(deps *Dependencies) {
		deps.Queue = queue
		deps.Workers = []*worker.Worker{worker.New(1, queue, proc, nil)}
	})

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	require.Equal(t, RouteHandoff, d.Dispatch(context.Background(), scrape.Job{ID: "a", Request: scrape.Request{URL: "https://a.example"}}))
	require.Eventually(t, func() bool { return len(p.Jobs()) == 1 }, time.Second, 5*time.Millisecond)

	queue.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker pool did not stop after the queue closed")
	}
}

func TestRunAfterDrainStartsNothing(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(1)
	proc := worker.NewProcessor(runnerFunc(func(scrape.Request) {}), nil, "selenium_webdriver", nil)
	d := newDispatcher(t, nil, &fakeProcessor{}, func(deps *Dependencies) {
		deps.Workers = []*worker.Worker{worker.New(1, queue, proc, nil)}
	})
	require.NoError(t, d.Drain(context.Background()))

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run started workers after Drain")
	}
}

func TestEnqueue(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, nil, &fakeProcessor{}, nil)
	require.Error(t, d.Enqueue(scrape.Job{ID: "x"}))

	queue := memory.NewQueue(1)
	d = newDispatcher(t, nil, &fakeProcessor{}, func(deps *Dependencies) { deps.Queue = queue })
	require.NoError(t, d.Enqueue(scrape.Job{ID: "a"}))
	require.ErrorIs(t, d.Enqueue(scrape.Job{ID: "b"}), memory.ErrFull)
}

type runnerFunc func(req scrape.Request)

func (f runnerFunc) Run(_ context.Context, req scrape.Request, _ orchestrator.Delivery) scrape.Record {
	f(req)
	return scrape.Record{URL: req.URL, Content: &scrape.Content{}}
}

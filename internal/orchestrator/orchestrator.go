// Package orchestrator sequences one extraction run: render, settle, classify, extract, persist, verify and
// deliver. Nothing past Run returns an error or panics; failures become error records or flagged fields.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/classifier"
	"github.com/JakeFAU/realtime-post-scraper/internal/extract"
	"github.com/JakeFAU/realtime-post-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
	"github.com/JakeFAU/realtime-post-scraper/internal/telemetry"
)

// Config holds the render timeout and the best-effort waits.
type Config struct {
	PageLoadTimeout time.Duration
	SettleDelay     time.Duration
	BlockedWait     time.Duration
	ScrollPause     time.Duration
	TopPause        time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PageLoadTimeout: 30 * time.Second,
		SettleDelay:     3 * time.Second,
		BlockedWait:     10 * time.Second,
		ScrollPause:     3 * time.Second,
		TopPause:        2 * time.Second,
	}
}

// Classifier maps a URL to a page type.
type Classifier interface {
	Classify(url string) scrape.PageType
}

// BlockDetector spots login and signup walls in rendered text.
type BlockDetector interface {
	Blocked(text string) bool
}

// Verifier forwards a record to the verification service.
type Verifier interface {
	Verify(ctx context.Context, record scrape.Record) scrape.VerificationOutcome
}

// Delivery hands the final record to whoever is waiting for it.
type Delivery interface {
	Deliver(ctx context.Context, record scrape.Record, correlationID string)
}

// Dependencies are the collaborators of an Orchestrator. Store and Verifier may be nil; a nil Hasher means URLHasher.
type Dependencies struct {
	Provider   scrape.RenderProvider
	Classifier Classifier
	Extractor  *extract.Extractor
	Detector   BlockDetector
	Store      scrape.ResultStore
	Verifier   Verifier
	Hasher     scrape.Hasher
	Clock      scrape.Clock
	Logger     *zap.Logger
}

// Orchestrator runs extraction requests. It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	cfg  Config
	deps Dependencies
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Provider == nil:
		return nil, errors.New("render provider is required")
	case deps.Classifier == nil:
		return nil, errors.New("classifier is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Detector == nil:
		return nil, errors.New("block detector is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if cfg.PageLoadTimeout <= 0 {
		cfg.PageLoadTimeout = DefaultConfig().PageLoadTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Hasher == nil {
		deps.Hasher = URLHasher{}
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// Method is the scraping-method tag of the render provider.
func (o *Orchestrator) Method() string {
	return o.deps.Provider.Method()
}

// Run executes req end to end and hands the result to delivery (which may be nil). The returned record is never
// mutated afterwards.
func (o *Orchestrator) Run(ctx context.Context, req scrape.Request, delivery Delivery) (record scrape.Record) {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.Run", trace.WithAttributes(
		attribute.String("scrape.url", req.URL),
		attribute.String("scrape.mode", string(req.Mode)),
	))
	defer span.End()

	r := &run{
		o:    o,
		req:  req,
		span: span,
		logger: o.deps.Logger.With(
			zap.String("url", req.URL),
			zap.String("correlation_id", req.CorrelationID),
		),
		state: StateStart,
	}
	delivered := false
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		err := fmt.Errorf("internal error: %v", rec)
		r.fail(err)
		record = scrape.NewErrorRecord(req.URL, o.deps.Provider.Method(), err)
		if !delivered {
			r.deliver(ctx, delivery, record)
		}
	}()

	record = r.execute(ctx)
	delivered = true
	r.deliver(ctx, delivery, record)
	if record.Failed() {
		r.transition(StateFailed)
	} else {
		r.transition(StateDone)
	}
	return record
}

// run is the state of one Run call.
type run struct {
	o      *Orchestrator
	req    scrape.Request
	span   trace.Span
	logger *zap.Logger
	state  State
}

func (r *run) transition(next State) {
	r.logger.Debug("orchestrator transition", zap.String("from", string(r.state)), zap.String("to", string(next)))
	r.span.AddEvent(string(next))
	r.state = next
}

func (r *run) fail(err error) {
	r.logger.Warn("extraction failed", zap.String("state", string(r.state)), zap.Error(err))
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, err.Error())
}

func (r *run) execute(ctx context.Context) scrape.Record {
	deps := r.o.deps
	page, err := deps.Provider.Load(ctx, r.req.URL, r.o.cfg.PageLoadTimeout)
	if err != nil {
		r.fail(fmt.Errorf("render: %w", err))
		metrics.ObserveExtraction(r.req.URL, string(scrape.PageTypeUnknown), "render_failed")
		return scrape.NewErrorRecord(r.req.URL, deps.Provider.Method(), err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			r.logger.Debug("close page", zap.Error(cerr))
		}
	}()
	r.transition(StatePageLoaded)
	method := page.Method()

	deps.Clock.Sleep(ctx, r.o.cfg.SettleDelay)
	r.mitigateBlocked(ctx, page)
	r.transition(StateContentSettled)

	html, err := page.HTML(ctx)
	if err != nil {
		r.fail(fmt.Errorf("read rendered html: %w", err))
		metrics.ObserveExtraction(r.req.URL, string(scrape.PageTypeUnknown), "render_failed")
		return scrape.NewErrorRecord(r.req.URL, method, err)
	}
	doc, err := extract.Parse(html, page.URL())
	if err != nil {
		r.fail(err)
		metrics.ObserveExtraction(r.req.URL, string(scrape.PageTypeUnknown), "render_failed")
		return scrape.NewErrorRecord(r.req.URL, method, err)
	}
	title, err := page.Title(ctx)
	if err != nil || title == "" {
		title = doc.Title()
	}

	pageType := deps.Classifier.Classify(r.req.URL)
	r.transition(StateClassified)

	fields := deps.Extractor.Extract(doc, pageType)
	pageType = classifier.Refine(pageType, classifier.Signals{
		Paragraphs: len(fields.Paragraphs),
		MainText:   fields.MainText,
	})
	record := scrape.Record{
		URL:            r.req.URL,
		ScrapingMethod: method,
		Content: &scrape.Content{
			PageTitle:        title,
			PageType:         pageType,
			Author:           fields.Author,
			MainText:         fields.MainText,
			Paragraphs:       fields.Paragraphs,
			Images:           fields.Images,
			Links:            fields.Links,
			Metrics:          fields.Metrics,
			Timestamp:        fields.Timestamp,
			ScrapedAt:        deps.Clock.Now().Format(scrape.ScrapedAtLayout),
			ReadyForDispatch: true,
		},
	}
	r.transition(StateExtracted)
	r.span.SetAttributes(attribute.String("scrape.page_type", string(pageType)))
	metrics.ObserveExtraction(r.req.URL, string(pageType), "success")

	key := StoreKey(r.req.URL, deps.Hasher, deps.Clock)
	id, saved := r.persist(ctx, key, record)
	record.StoreID = id
	record.SavedToStore = saved
	r.transition(StatePersisted)

	if r.req.Mode != scrape.ModeVerified {
		return record
	}

	r.transition(StateVerifying)
	record = record.WithVerification(r.verify(ctx, record))
	r.transition(StateVerified)
	if id2, ok := r.persist(ctx, key, record); ok {
		record.StoreID = id2
		record.SavedToStore = true
	}
	return record
}

// mitigateBlocked waits and rescrolls once when the page shows a login or signup wall. It is best-effort: the page
// may still be gated afterwards.
func (r *run) mitigateBlocked(ctx context.Context, page scrape.Page) {
	text, err := page.Text(ctx)
	if err != nil {
		r.logger.Debug("read page text for blocked check", zap.Error(err))
		return
	}
	if !r.o.deps.Detector.Blocked(text) {
		return
	}
	r.transition(StateBlockedPageDetected)
	metrics.ObserveBlockedPage(r.req.URL)

	clock := r.o.deps.Clock
	clock.Sleep(ctx, r.o.cfg.BlockedWait)
	if err := page.ScrollTo(ctx, scrape.ScrollBottom); err != nil {
		r.logger.Debug("scroll to bottom", zap.Error(err))
	}
	clock.Sleep(ctx, r.o.cfg.ScrollPause)
	if err := page.ScrollTo(ctx, scrape.ScrollTop); err != nil {
		r.logger.Debug("scroll to top", zap.Error(err))
	}
	clock.Sleep(ctx, r.o.cfg.TopPause)
}

// persist writes a copy of record. Failures are logged and reported as not saved.
func (r *run) persist(ctx context.Context, key string, record scrape.Record) (string, bool) {
	store := r.o.deps.Store
	if store == nil {
		metrics.ObserveStoreWrite("skipped")
		return "", false
	}
	id, err := store.Put(ctx, key, record.Clone())
	if err != nil {
		r.logger.Warn("persist record failed", zap.String("key", key), zap.Error(err))
		metrics.ObserveStoreWrite("error")
		return "", false
	}
	r.logger.Debug("record persisted", zap.String("key", key), zap.String("store_id", id))
	metrics.ObserveStoreWrite("success")
	return id, true
}

func (r *run) verify(ctx context.Context, record scrape.Record) scrape.VerificationOutcome {
	if r.o.deps.Verifier == nil {
		return scrape.VerificationOutcome{Error: "verification endpoint not configured", Claims: []scrape.Claim{}}
	}
	outcome := r.o.deps.Verifier.Verify(ctx, record.Clone())
	r.span.SetAttributes(attribute.Bool("scrape.verification_success", outcome.Success))
	return outcome
}

func (r *run) deliver(ctx context.Context, delivery Delivery, record scrape.Record) {
	if delivery == nil {
		return
	}
	delivery.Deliver(ctx, record.Clone(), r.req.CorrelationID)
	r.transition(StateDelivered)
}

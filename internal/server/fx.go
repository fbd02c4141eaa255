// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/api"
	"github.com/JakeFAU/realtime-post-scraper/internal/background"
	"github.com/JakeFAU/realtime-post-scraper/internal/catalog"
	"github.com/JakeFAU/realtime-post-scraper/internal/classifier"
	"github.com/JakeFAU/realtime-post-scraper/internal/clock/system"
	"github.com/JakeFAU/realtime-post-scraper/internal/config"
	"github.com/JakeFAU/realtime-post-scraper/internal/detector"
	"github.com/JakeFAU/realtime-post-scraper/internal/dispatcher"
	"github.com/JakeFAU/realtime-post-scraper/internal/extract"
	"github.com/JakeFAU/realtime-post-scraper/internal/handoff"
	"github.com/JakeFAU/realtime-post-scraper/internal/handoff/httpworker"
	localhandoff "github.com/JakeFAU/realtime-post-scraper/internal/handoff/local"
	pubsubhandoff "github.com/JakeFAU/realtime-post-scraper/internal/handoff/pubsub"
	"github.com/JakeFAU/realtime-post-scraper/internal/id/uuid"
	"github.com/JakeFAU/realtime-post-scraper/internal/logging"
	"github.com/JakeFAU/realtime-post-scraper/internal/notify"
	"github.com/JakeFAU/realtime-post-scraper/internal/orchestrator"
	queueMemory "github.com/JakeFAU/realtime-post-scraper/internal/queue/memory"
	"github.com/JakeFAU/realtime-post-scraper/internal/render"
	"github.com/JakeFAU/realtime-post-scraper/internal/render/headless"
	"github.com/JakeFAU/realtime-post-scraper/internal/render/static"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
	gcsstorage "github.com/JakeFAU/realtime-post-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/realtime-post-scraper/internal/storage/local"
	memoryStorage "github.com/JakeFAU/realtime-post-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/realtime-post-scraper/internal/storage/postgres"
	"github.com/JakeFAU/realtime-post-scraper/internal/telemetry"
	"github.com/JakeFAU/realtime-post-scraper/internal/verify"
	"github.com/JakeFAU/realtime-post-scraper/internal/worker"
)

const defaultServiceName = "realtime-post-scraper"

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	apiServer      *api.Server
	dispatch       *dispatcher.Dispatcher
	runner         *orchestrator.Orchestrator
	delivery       *notify.Deliverer
	queue          *queueMemory.Queue
	store          scrape.ResultStore
	pubsubClient   *pubsub.Client
	pubsubHandoff  *pubsubhandoff.Handoff
	storage        *storage.Client
	pgStore        *pgstore.ResultStore
	browser        *headless.Provider
	tracerShutdown func(context.Context) error
	draining       atomic.Bool
	closed         atomic.Bool
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	// Only non-sensitive fields are logged; the API key and DSN stay out of the logs.
	type SanitizedConfig struct {
		ServerPort int    `json:"server_port"`
		Strategy   string `json:"render_strategy"`
		Storage    string `json:"storage_backend"`
		Handoff    string `json:"handoff"`
	}
	safeCfg := SanitizedConfig{
		ServerPort: cfg.Server.Port,
		Strategy:   cfg.Render.Strategy,
		Storage:    cfg.Storage.Backend,
		Handoff:    cfg.Dispatch.Handoff,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Handler exposes the API handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Scrape runs one request in the caller's goroutine and delivers the record to the result webhook when one is
// configured.
func (a *App) Scrape(ctx context.Context, req scrape.Request) scrape.Record {
	return a.runner.Run(ctx, req, a.delivery)
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
		a.logger.Info("worker pool stopped")
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")
	a.draining.Store(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application. Closing the queue lets the workers finish every job already
// accepted; queued jobs and background extractions get until ctx expires. Calls after the first are no-ops.
func (a *App) Close(ctx context.Context) error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.draining.Store(true)
	if a.queue != nil {
		a.queue.Close()
	}
	var drainErr error
	if a.dispatch != nil {
		if drainErr = a.dispatch.Drain(ctx); drainErr != nil {
			a.logger.Warn("background drain incomplete", zap.Error(drainErr))
		}
	}
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return drainErr
}

func (a *App) ready(context.Context) error {
	if a.draining.Load() {
		return errors.New("shutting down")
	}
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubHandoff != nil {
		a.pubsubHandoff.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.browser != nil {
		a.browser.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	app.logger.Info("building application dependencies")
	if app.store, err = setupStorage(ctx, app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	if app.runner, err = setupOrchestrator(app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	sink := notify.NewHTTPSink(nil, cfg.Render.UserAgent)
	app.delivery = notify.NewDeliverer(sink, notify.Config{
		WebhookURL: cfg.Notify.WebhookURL,
		Timeout:    cfg.Notify.Timeout(),
	}, system.New(), logger.Named("notify"))

	app.queue = queueMemory.NewQueue(cfg.Dispatch.QueueDepth)
	ho, err := setupHandoff(ctx, app, sink)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	if app.dispatch, err = setupDispatcher(app, ho); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.apiServer = api.NewServer(api.Dependencies{
		Dispatcher: app.dispatch,
		Runner:     app.runner,
		Store:      app.store,
		Ready:      app.ready,
	}, api.Config{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		CORSOrigin:     cfg.Server.CORSOrigin,
		RequestTimeout: cfg.Server.RequestTimeout(),
	}, logger.Named("api"))

	return app, nil
}

func setupStorage(ctx context.Context, app *App) (scrape.ResultStore, error) {
	var err error
	switch app.cfg.Storage.Backend {
	case config.StorageGCS:
		app.logger.Info("using GCS storage backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Storage.GCS.Bucket,
			Prefix: app.cfg.Storage.GCS.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs result store init failed: %w", err)
		}
		app.logger.Debug("GCS storage backend", zap.String("bucket", app.cfg.Storage.GCS.Bucket))
		return store, nil
	case config.StorageLocal:
		app.logger.Info("using local storage backend")
		store, err := localstorage.New(app.cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local result store init failed: %w", err)
		}
		app.logger.Debug("local storage backend", zap.String("path", app.cfg.Storage.Local.BaseDir))
		return store, nil
	case config.StoragePostgres:
		app.logger.Info("using postgres storage backend")
		pg := app.cfg.Storage.Postgres
		app.pgStore, err = pgstore.New(ctx, pgstore.Config{
			DSN:             pg.DSN,
			Table:           pg.Table,
			MaxConns:        pg.MaxConns,
			MinConns:        pg.MinConns,
			MaxConnLifetime: pg.MaxConnLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("postgres result store init failed: %w", err)
		}
		if err := app.pgStore.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		app.logger.Info("postgres result store initialized", zap.String("table", pg.Table))
		return app.pgStore, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewResultStore(), nil
	}
}

func setupRender(app *App) scrape.RenderProvider {
	rc := app.cfg.Render
	strategy := render.Strategy(rc.Strategy)

	var browser scrape.RenderProvider = render.Disabled{Tag: headless.Method}
	if strategy != render.StrategyStatic {
		provider, err := headless.New(headless.Config{
			MaxParallel: rc.MaxParallel,
			UserAgent:   rc.UserAgent,
		})
		if err != nil {
			app.logger.Warn("headless provider init failed", zap.Error(err))
		} else {
			app.browser = provider
			browser = provider
			app.logger.Info("using headless provider", zap.Int("max_parallel", rc.MaxParallel))
		}
	}

	switch strategy {
	case render.StrategyStatic:
		app.logger.Info("using static provider", zap.String("user_agent", rc.UserAgent))
		return render.Timed{RenderProvider: static.New(static.Config{
			UserAgent: rc.UserAgent,
			Timeout:   rc.PageLoadTimeout(),
		})}
	case render.StrategyAuto:
		app.logger.Info("using static probe with headless promotion",
			zap.Int("promotion_threshold", rc.PromotionThreshold),
		)
		probe := static.New(static.Config{UserAgent: rc.UserAgent, Timeout: rc.PageLoadTimeout()})
		promoter := detector.NewHeuristic(rc.PromotionThreshold, rc.BlockedMarkers)
		return render.Timed{RenderProvider: render.NewAuto(probe, browser, promoter, app.logger.Named("render"))}
	default:
		return render.Timed{RenderProvider: browser}
	}
}

func setupOrchestrator(app *App) (*orchestrator.Orchestrator, error) {
	cat, err := catalog.FromConfig(app.cfg.Catalog.Extensions)
	if err != nil {
		return nil, fmt.Errorf("selector catalog init failed: %w", err)
	}
	app.logger.Info("selector catalog loaded", zap.String("version", cat.Version()))

	cls, err := classifier.New(app.cfg.Classifier.SocialDomains, app.cfg.Classifier.NewsDomains)
	if err != nil {
		return nil, fmt.Errorf("classifier init failed: %w", err)
	}

	verifySink := notify.NewHTTPSink(nil, app.cfg.Render.UserAgent)
	verifier := verify.NewClient(verifySink, verify.Config{
		Endpoint: app.cfg.Verify.Endpoint,
		Timeout:  app.cfg.Verify.Timeout(),
	}, app.logger.Named("verify"))

	rc := app.cfg.Render
	runner, err := orchestrator.New(orchestrator.Config{
		PageLoadTimeout: rc.PageLoadTimeout(),
		SettleDelay:     rc.Settle(),
		BlockedWait:     rc.BlockedWait(),
		ScrollPause:     rc.ScrollPause(),
		TopPause:        rc.TopPause(),
	}, orchestrator.Dependencies{
		Provider:   setupRender(app),
		Classifier: cls,
		Extractor:  extract.New(cat, app.logger.Named("extract")),
		Detector:   detector.NewHeuristic(rc.PromotionThreshold, rc.BlockedMarkers),
		Store:      app.store,
		Verifier:   verifier,
		Clock:      system.New(),
		Logger:     app.logger.Named("orchestrator"),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	app.logger.Info("orchestrator config",
		zap.Duration("page_load_timeout", rc.PageLoadTimeout()),
		zap.Duration("settle", rc.Settle()),
		zap.Duration("blocked_wait", rc.BlockedWait()),
	)
	return runner, nil
}

func setupHandoff(ctx context.Context, app *App, sink scrape.NotificationSink) (scrape.Handoff, error) {
	dc := app.cfg.Dispatch
	switch handoff.Backend(dc.Handoff) {
	case handoff.BackendPubSub:
		var err error
		app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubHandoff = pubsubhandoff.New(app.pubsubClient.Topic(app.cfg.PubSub.TopicName), dc.HandoffTimeout())
		app.logger.Info(
			"Pub/Sub handoff initialized",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.cfg.PubSub.TopicName),
		)
		return app.pubsubHandoff, nil
	case handoff.BackendHTTP:
		ho, err := httpworker.New(sink, dc.WorkerURL, dc.HandoffTimeout())
		if err != nil {
			return nil, fmt.Errorf("http handoff init failed: %w", err)
		}
		app.logger.Info("http handoff initialized", zap.String("endpoint", ho.Endpoint()))
		return ho, nil
	case handoff.BackendNone:
		app.logger.Warn("no handoff configured, every job runs on the in-process fallback")
		return handoff.None{}, nil
	default:
		app.logger.Info("using local queue handoff", zap.Int("queue_depth", dc.QueueDepth))
		return localhandoff.New(app.queue), nil
	}
}

func setupDispatcher(app *App, ho scrape.Handoff) (*dispatcher.Dispatcher, error) {
	dc := app.cfg.Dispatch
	processor := worker.NewProcessor(app.runner, app.delivery, app.runner.Method(), app.logger.Named("processor"))

	var workers []*worker.Worker
	for i := 0; i < dc.Concurrency; i++ {
		workers = append(workers, worker.New(
			i,
			app.queue,
			processor,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	app.logger.Info("worker pool configured",
		zap.Int("concurrency", dc.Concurrency),
		zap.Int("fallback_max_parallel", dc.FallbackMaxParallel),
	)

	dispatch, err := dispatcher.New(dispatcher.Config{HandoffTimeout: dc.HandoffTimeout()}, dispatcher.Dependencies{
		Handoff:   ho,
		Processor: processor,
		Group:     background.New(dc.FallbackMaxParallel, app.logger.Named("background")),
		Queue:     app.queue,
		Workers:   workers,
		Delivery:  app.delivery,
		Method:    app.runner.Method(),
		IDs:       uuid.New(),
		Clock:     system.New(),
		Logger:    app.logger.Named("dispatcher"),
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher init failed: %w", err)
	}
	return dispatch, nil
}

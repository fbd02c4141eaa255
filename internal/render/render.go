// Package render selects how pages are rendered: headless Chrome, a plain HTTP GET, or a static probe that is
// promoted to headless when the response looks like a client-rendered app.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// ErrDisabled is returned by Disabled.Load.
var ErrDisabled = errors.New("render provider not configured")

// Strategy names a rendering strategy from configuration.
type Strategy string

// Strategies.
const (
	StrategyHeadless Strategy = "headless"
	StrategyStatic   Strategy = "static"
	StrategyAuto     Strategy = "auto"
)

// Disabled implements scrape.RenderProvider but always fails. It still reports a method tag so error records
// carry one.
type Disabled struct {
	Tag string
}

// Load always returns ErrDisabled.
func (d Disabled) Load(_ context.Context, _ string, _ time.Duration) (scrape.Page, error) {
	return nil, ErrDisabled
}

// Method returns the configured tag.
func (d Disabled) Method() string {
	return d.Tag
}

// Promoter decides whether a static response needs a headless render.
type Promoter interface {
	ShouldPromote(statusCode int, body []byte) bool
}

// responder is implemented by pages that expose the raw HTTP response.
type responder interface {
	Response() (int, []byte)
}

// Auto tries the static provider first and switches to the headless provider when the promoter says so or the
// static fetch fails.
type Auto struct {
	static   scrape.RenderProvider
	headless scrape.RenderProvider
	promoter Promoter
	logger   *zap.Logger
}

// NewAuto builds an Auto provider.
func NewAuto(static, headless scrape.RenderProvider, promoter Promoter, logger *zap.Logger) *Auto {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auto{static: static, headless: headless, promoter: promoter, logger: logger}
}

// Method reports the headless tag, which is what failures are attributed to.
func (a *Auto) Method() string {
	return a.headless.Method()
}

// Load returns a static page when it is good enough, otherwise a headless one.
func (a *Auto) Load(ctx context.Context, url string, timeout time.Duration) (scrape.Page, error) {
	page, err := a.static.Load(ctx, url, timeout)
	if err != nil {
		a.logger.Debug("static probe failed, promoting", zap.String("url", url), zap.Error(err))
		return a.loadHeadless(ctx, url, timeout)
	}
	resp, ok := page.(responder)
	if !ok {
		return page, nil
	}
	status, body := resp.Response()
	if !a.promoter.ShouldPromote(status, body) {
		return page, nil
	}
	if cerr := page.Close(); cerr != nil {
		a.logger.Debug("close static page", zap.Error(cerr))
	}
	a.logger.Debug("static response looks client-rendered, promoting",
		zap.String("url", url),
		zap.Int("status", status),
		zap.Int("bytes", len(body)),
	)
	return a.loadHeadless(ctx, url, timeout)
}

func (a *Auto) loadHeadless(ctx context.Context, url string, timeout time.Duration) (scrape.Page, error) {
	page, err := a.headless.Load(ctx, url, timeout)
	if err != nil {
		return nil, fmt.Errorf("headless render: %w", err)
	}
	return page, nil
}

// Timed wraps a provider and records load latency by method.
type Timed struct {
	scrape.RenderProvider
}

// Load delegates and observes the duration.
func (t Timed) Load(ctx context.Context, url string, timeout time.Duration) (scrape.Page, error) {
	start := time.Now()
	page, err := t.RenderProvider.Load(ctx, url, timeout)
	method := t.RenderProvider.Method()
	if page != nil {
		method = page.Method()
	}
	metrics.ObserveRender(method, time.Since(start))
	return page, err
}

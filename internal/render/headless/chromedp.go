// Package headless renders pages in headless Chrome via chromedp.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Method is the scraping-method tag for headless renders. Downstream consumers key on this value.
const Method = "selenium_webdriver"

const (
	defaultOpTimeout = 15 * time.Second

	scrollBottomJS = `window.scrollTo(0, document.body.scrollHeight);`
	scrollTopJS    = `window.scrollTo(0, 0);`
)

// Config controls the behavior of the headless provider.
type Config struct {
	// MaxParallel bounds concurrent browser tabs. Zero means unbounded.
	MaxParallel int
	UserAgent   string
	// OpTimeout bounds each page operation after load (text, html, scroll).
	OpTimeout time.Duration
}

// Provider implements scrape.RenderProvider using chromedp and headless Chrome.
type Provider struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless provider. The browser is started lazily on the first Load.
func New(cfg Config) (*Provider, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Provider{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (p *Provider) Close() {
	p.allocCancel()
}

// Method returns the scraping-method tag.
func (p *Provider) Method() string {
	return Method
}

// Load opens a tab, navigates to url and waits for the body, all within timeout. The returned Page owns the tab
// and a parallelism slot until it is closed.
func (p *Provider) Load(ctx context.Context, url string, timeout time.Duration) (scrape.Page, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(p.allocator)
	page := &Page{
		url:       url,
		tabCtx:    tabCtx,
		opTimeout: p.cfg.OpTimeout,
		cancel:    tabCancel,
		release:   p.release,
	}
	// A caller cancellation tears the tab down.
	page.stop = context.AfterFunc(ctx, tabCancel)

	// Allocate the tab on a context without a deadline so the load timeout does not close it.
	if err := chromedp.Run(tabCtx); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("start browser tab: %w", err)
	}

	loadCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	var finalURL string
	err := chromedp.Run(loadCtx,
		p.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	if finalURL != "" {
		page.url = finalURL
	}
	return page, nil
}

func (p *Provider) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if p.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(p.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (p *Provider) acquire(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	select {
	case p.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (p *Provider) release() {
	if p.limiter == nil {
		return
	}
	select {
	case <-p.limiter:
	default:
	}
}

// Page is one browser tab. Close is idempotent.
type Page struct {
	url       string
	tabCtx    context.Context
	opTimeout time.Duration

	closeOnce sync.Once
	cancel    context.CancelFunc
	stop      func() bool
	release   func()
}

// URL returns the final URL after redirects.
func (pg *Page) URL() string { return pg.url }

// Method returns the scraping-method tag.
func (pg *Page) Method() string { return Method }

// Title returns document.title.
func (pg *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := pg.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// Text returns the visible text of the body.
func (pg *Page) Text(ctx context.Context) (string, error) {
	var text string
	if err := pg.run(ctx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read body text: %w", err)
	}
	return text, nil
}

// HTML returns the serialized DOM.
func (pg *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := pg.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// ScrollTo scrolls the window to the top or bottom of the document.
func (pg *Page) ScrollTo(ctx context.Context, pos scrape.ScrollPosition) error {
	script := scrollTopJS
	if pos == scrape.ScrollBottom {
		script = scrollBottomJS
	}
	if err := pg.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// Close closes the tab and frees its parallelism slot.
func (pg *Page) Close() error {
	pg.closeOnce.Do(func() {
		if pg.stop != nil {
			pg.stop()
		}
		if pg.cancel != nil {
			pg.cancel()
		}
		if pg.release != nil {
			pg.release()
		}
	})
	return nil
}

func (pg *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(pg.tabCtx, pg.opTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

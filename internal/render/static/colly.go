// Package static renders pages with a plain HTTP GET through colly. No JavaScript runs.
package static

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Method is the scraping-method tag for static renders.
const Method = "http_static"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Provider implements scrape.RenderProvider using the Colly collector.
type Provider struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Provider.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	c.IgnoreRobotsTxt = true
	// Error statuses still carry a page worth extracting.
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Provider{cfg: cfg, baseCollector: c}
}

// Method returns the scraping-method tag.
func (p *Provider) Method() string {
	return Method
}

// Load fetches url and wraps the response body as a Page.
func (p *Provider) Load(ctx context.Context, url string, timeout time.Duration) (scrape.Page, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		page     *Page
		fetchErr error
	)
	collector := p.baseCollector.Clone()
	p.configureCollectorHooks(collector, &page, &fetchErr)

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("colly fetch %s: no response", url)
	}
	return page, nil
}

func (p *Provider) configureCollectorHooks(hooks collectorHooks, page **Page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*page = &Page{
			url:    r.Request.URL.String(),
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Page is a fetched response body. Scrolling is a no-op.
type Page struct {
	url    string
	status int
	body   []byte

	once sync.Once
	doc  *goquery.Document
	err  error
}

// URL returns the final URL after redirects.
func (pg *Page) URL() string { return pg.url }

// Method returns the scraping-method tag.
func (pg *Page) Method() string { return Method }

// Response returns the HTTP status and raw body.
func (pg *Page) Response() (int, []byte) { return pg.status, pg.body }

// Title returns the text of the <title> element.
func (pg *Page) Title(_ context.Context) (string, error) {
	doc, err := pg.document()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

// Text returns the body text.
func (pg *Page) Text(_ context.Context) (string, error) {
	doc, err := pg.document()
	if err != nil {
		return "", err
	}
	return doc.Find("body").Text(), nil
}

// HTML returns the raw response body.
func (pg *Page) HTML(_ context.Context) (string, error) {
	return string(pg.body), nil
}

// ScrollTo does nothing; there is no viewport.
func (pg *Page) ScrollTo(_ context.Context, _ scrape.ScrollPosition) error {
	return nil
}

// Close releases nothing.
func (pg *Page) Close() error {
	return nil
}

func (pg *Page) document() (*goquery.Document, error) {
	pg.once.Do(func() {
		pg.doc, pg.err = goquery.NewDocumentFromReader(bytes.NewReader(pg.body))
		if pg.err != nil {
			pg.err = fmt.Errorf("parse static body: %w", pg.err)
		}
	})
	return pg.doc, pg.err
}

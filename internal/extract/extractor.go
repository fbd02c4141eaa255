package extract

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/catalog"
	"github.com/JakeFAU/realtime-post-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Fields is the extracted content of one page, before record assembly.
type Fields struct {
	MainText   string
	Paragraphs []string
	Images     []string
	Links      []string
	Author     string
	Timestamp  *string
	Metrics    map[string]string
}

// Extractor runs every field extractor against one catalog. A failing field falls back to its default.
type Extractor struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// New creates an Extractor. A nil catalog means catalog.Default().
func New(cat *catalog.Catalog, logger *zap.Logger) *Extractor {
	if cat == nil {
		cat = catalog.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{catalog: cat, logger: logger}
}

// Catalog returns the rule table in use.
func (e *Extractor) Catalog() *catalog.Catalog {
	return e.catalog
}

// Extract evaluates all fields for pageType.
func (e *Extractor) Extract(doc *Document, pageType scrape.PageType) Fields {
	c := e.catalog
	var f Fields
	f.Paragraphs = guard(e.logger, catalog.FieldParagraphs, []string{}, func() []string {
		return Paragraphs(doc, c.Rules(catalog.FieldParagraphs, pageType))
	})
	f.MainText = guard(e.logger, catalog.FieldMainText, firstOr(f.Paragraphs, scrape.MainTextPlaceholder),
		func() string {
			return MainText(doc, c.Rules(catalog.FieldMainText, scrape.PageTypeSocialPost), f.Paragraphs)
		})
	f.Images = guard(e.logger, catalog.FieldImages, []string{}, func() []string {
		return Images(doc, c.Rules(catalog.FieldImages, pageType))
	})
	f.Links = guard(e.logger, catalog.FieldLinks, []string{}, func() []string {
		return Links(doc, c.Rules(catalog.FieldLinks, pageType))
	})
	f.Author = guard(e.logger, catalog.FieldAuthor, scrape.DefaultAuthor, func() string {
		return Author(doc, c.Rules(catalog.FieldAuthor, pageType), c.Rules(catalog.FieldAuthorMeta, pageType))
	})
	f.Timestamp = guard(e.logger, catalog.FieldTimestamp, nil, func() *string {
		return Timestamp(doc, c.Rules(catalog.FieldTimestamp, pageType))
	})
	f.Metrics = guard(e.logger, catalog.FieldMetrics, map[string]string{}, func() map[string]string {
		return Metrics(doc, c.Metrics())
	})
	return f
}

func guard[T any](logger *zap.Logger, field catalog.Field, def T, fn func() T) (out T) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("field extractor failed, using default",
				zap.String("field", string(field)),
				zap.String("panic", fmt.Sprint(rec)),
			)
			metrics.ObserveExtractorFailure(string(field))
			out = def
		}
	}()
	return fn()
}

func firstOr(items []string, def string) string {
	if len(items) > 0 {
		return items[0]
	}
	return def
}

// Package extract implements the field extractors that turn a rendered page into record fields.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-post-scraper/internal/catalog"
)

// Document is a parsed rendered page plus the URL used to resolve relative references.
type Document struct {
	doc  *goquery.Document
	base *url.URL
}

// Parse builds a Document from rendered HTML.
func Parse(html, pageURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	d := &Document{doc: doc}
	if u, err := url.Parse(pageURL); err == nil && u.IsAbs() {
		d.base = u
	}
	return d, nil
}

// Title returns the trimmed <title> text.
func (d *Document) Title() string {
	return normalizeSpace(d.doc.Find("title").First().Text())
}

// Text returns the normalized body text.
func (d *Document) Text() string {
	return normalizeSpace(d.doc.Find("body").Text())
}

// each calls fn with the normalized candidate value of every element matched by rule, in DOM order,
// until fn returns false.
func (d *Document) each(rule catalog.Rule, fn func(value string) bool) {
	d.doc.Find(rule.Query).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		return fn(value(sel, rule.Sources()))
	})
}

// first returns the first element matched by rule, if any.
func (d *Document) first(rule catalog.Rule) (*goquery.Selection, bool) {
	sel := d.doc.Find(rule.Query).First()
	return sel, sel.Length() > 0
}

// resolve turns ref into an absolute URL string using the page URL as base.
func (d *Document) resolve(ref string) (*url.URL, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, false
	}
	if !u.IsAbs() {
		if d.base == nil {
			return nil, false
		}
		u = d.base.ResolveReference(u)
	}
	return u, true
}

// value returns the first non-empty source in preference order.
func value(sel *goquery.Selection, sources []string) string {
	for _, src := range sources {
		var v string
		if src == catalog.Text {
			v = sel.Text()
		} else {
			v, _ = sel.Attr(src)
		}
		if v = normalizeSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

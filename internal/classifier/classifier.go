// Package classifier decides a page's type from its URL, with a content-signal fallback.
package classifier

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// DefaultSocialDomains are the built-in social-post hosts.
var DefaultSocialDomains = []string{"twitter.com", "x.com"}

// DefaultNewsDomains are the built-in news hosts.
var DefaultNewsDomains = []string{
	"freemalaysiatoday.com",
	"sinchew.com.my",
	"malaysiakini.com",
	"thestar.com.my",
}

// Signals are the content hints used when the URL alone was inconclusive.
type Signals struct {
	Paragraphs int
	MainText   string
}

// Classifier matches URL hosts against two disjoint domain buckets.
type Classifier struct {
	social []string
	news   []string
}

// New builds a Classifier. No host may fall in both buckets, so an entry in one bucket must be neither equal to
// nor a subdomain of an entry in the other.
func New(social, news []string) (*Classifier, error) {
	s := normalizeDomains(social)
	n := normalizeDomains(news)
	for _, d := range s {
		for _, other := range n {
			if matchAny(d, []string{other}) || matchAny(other, []string{d}) {
				return nil, fmt.Errorf("social domain %q overlaps news domain %q", d, other)
			}
		}
	}
	return &Classifier{social: s, news: n}, nil
}

// Default returns a Classifier with the built-in domain lists.
func Default() *Classifier {
	c, err := New(DefaultSocialDomains, DefaultNewsDomains)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the page type implied by rawURL, or Unknown when no bucket matches.
func (c *Classifier) Classify(rawURL string) scrape.PageType {
	host := hostOf(rawURL)
	if host == "" {
		return scrape.PageTypeUnknown
	}
	if matchAny(host, c.social) {
		return scrape.PageTypeSocialPost
	}
	if matchAny(host, c.news) {
		return scrape.PageTypeNewsArticle
	}
	return scrape.PageTypeUnknown
}

// Refine re-classifies an Unknown page from content signals. Known types pass through unchanged.
func Refine(pageType scrape.PageType, sig Signals) scrape.PageType {
	if pageType != scrape.PageTypeUnknown {
		return pageType
	}
	switch {
	case sig.Paragraphs > 0:
		return scrape.PageTypeNewsArticle
	case sig.MainText != "" && sig.MainText != scrape.MainTextPlaceholder:
		return scrape.PageTypeSocialPost
	default:
		return scrape.PageTypeGeneric
	}
}

func hostOf(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("http://" + raw)
		if err != nil {
			return ""
		}
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// matchAny reports whether host equals a domain or is one of its subdomains.
func matchAny(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, d := range in {
		d = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
		d = strings.TrimPrefix(d, "www.")
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

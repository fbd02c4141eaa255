package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/realtime-post-scraper/internal/catalog"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

const (
	MaxParagraphs = 20
	MaxImages     = 10
	MaxLinks      = 15
	// MinParagraphLen is the exclusive lower bound on paragraph length.
	MinParagraphLen = 20
)

// BlockedPhrases removes boilerplate paragraphs (case-insensitive substring match).
var BlockedPhrases = []string{"cookie", "subscribe", "newsletter", "advertisement", "sponsored"}

var digitRun = regexp.MustCompile(`\d[\d,]*`)

// MainText returns the first primary-text hit, else the first paragraph, else the placeholder.
func MainText(doc *Document, rules []catalog.Rule, paragraphs []string) string {
	if v := firstAccepted(doc, rules); v != "" {
		return v
	}
	if len(paragraphs) > 0 {
		return paragraphs[0]
	}
	return scrape.MainTextPlaceholder
}

// Paragraphs unions every rule in catalog order, drops short and boilerplate text, dedupes and caps.
func Paragraphs(doc *Document, rules []catalog.Rule) []string {
	out := newOrderedSet(MaxParagraphs)
	for _, rule := range rules {
		if out.full() {
			break
		}
		doc.each(rule, func(v string) bool {
			if utf8.RuneCountInString(v) > MinParagraphLen && !containsBlockedPhrase(v) {
				out.add(v)
			}
			return !out.full()
		})
	}
	return out.items
}

// Images unions every rule, keeps absolute http(s) URLs only, dedupes and caps.
func Images(doc *Document, rules []catalog.Rule) []string {
	out := newOrderedSet(MaxImages)
	for _, rule := range rules {
		if out.full() {
			break
		}
		doc.each(rule, func(v string) bool {
			if strings.HasPrefix(strings.ToLower(v), "data:") {
				return true
			}
			u, ok := doc.resolve(v)
			if ok && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
				out.add(u.String())
			}
			return !out.full()
		})
	}
	return out.items
}

// Links collects anchors with a concrete href, skipping javascript: and fragment-only targets.
func Links(doc *Document, rules []catalog.Rule) []string {
	out := newOrderedSet(MaxLinks)
	for _, rule := range rules {
		if out.full() {
			break
		}
		doc.each(rule, func(v string) bool {
			if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(strings.ToLower(v), "javascript:") {
				return true
			}
			if u, ok := doc.resolve(v); ok {
				out.add(u.String())
			}
			return !out.full()
		})
	}
	return out.items
}

// Author tries rules in order, then the meta tags, then falls back to scrape.DefaultAuthor.
func Author(doc *Document, rules, metaRules []catalog.Rule) string {
	if v := firstAccepted(doc, rules); v != "" {
		return v
	}
	if v := firstAccepted(doc, metaRules); v != "" {
		return v
	}
	return scrape.DefaultAuthor
}

// Timestamp returns the first non-empty candidate, or nil.
func Timestamp(doc *Document, rules []catalog.Rule) *string {
	if v := firstAccepted(doc, rules); v != "" {
		return &v
	}
	return nil
}

// Metrics looks up one element per metric. Missing elements are omitted; unparsable ones count as "0".
func Metrics(doc *Document, rules []catalog.MetricRule) map[string]string {
	out := make(map[string]string, len(rules))
	for _, m := range rules {
		sel, ok := doc.first(m.Rule)
		if !ok {
			continue
		}
		count := "0"
		for _, src := range m.Rule.Sources() {
			if n := digitRun.FindString(value(sel, []string{src})); n != "" {
				count = strings.ReplaceAll(n, ",", "")
				break
			}
		}
		out[m.Name] = count
	}
	return out
}

func firstAccepted(doc *Document, rules []catalog.Rule) string {
	for _, rule := range rules {
		var found string
		doc.each(rule, func(v string) bool {
			if rule.Accepts(v) {
				found = v
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func containsBlockedPhrase(s string) bool {
	lower := strings.ToLower(s)
	for _, phrase := range BlockedPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

type orderedSet struct {
	limit int
	seen  map[string]struct{}
	items []string
}

func newOrderedSet(limit int) *orderedSet {
	return &orderedSet{limit: limit, seen: map[string]struct{}{}, items: []string{}}
}

func (s *orderedSet) add(v string) {
	if s.full() {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) full() bool {
	return len(s.items) >= s.limit
}

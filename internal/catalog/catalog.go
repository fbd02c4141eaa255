// Package catalog holds the ordered selector rules used by the field extractors.
//
// The catalog is data: field -> page type -> ordered rules. Singular fields take the first rule hit that satisfies
// the rule's constraints, plural fields union every rule. New selectors are added with Extend, never by editing
// extractor code.
package catalog

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Version identifies the revision of the default table.
const Version = "2024-11.3"

// Text is the pseudo attribute meaning "the element's text content".
const Text = "#text"

// Field names an extracted record field.
type Field string

const (
	FieldMainText   Field = "main_text"
	FieldParagraphs Field = "paragraphs"
	FieldImages     Field = "images"
	FieldLinks      Field = "links"
	FieldAuthor     Field = "author"
	FieldAuthorMeta Field = "author_meta"
	FieldTimestamp  Field = "timestamp"
	FieldMetrics    Field = "metrics"
)

var knownFields = []Field{
	FieldMainText, FieldParagraphs, FieldImages, FieldLinks,
	FieldAuthor, FieldAuthorMeta, FieldTimestamp, FieldMetrics,
}

// Rule is one candidate extraction: a CSS query plus the attribute preference list.
// An empty Attrs list means element text. MinLen and MaxLen are exclusive rune bounds; zero disables a bound.
type Rule struct {
	Query  string
	Attrs  []string
	MinLen int
	MaxLen int
}

// Accepts reports whether a trimmed candidate value satisfies the rule's length constraints.
func (r Rule) Accepts(value string) bool {
	if value == "" {
		return false
	}
	n := utf8.RuneCountInString(value)
	if n <= r.MinLen {
		return false
	}
	return r.MaxLen <= 0 || n < r.MaxLen
}

// Sources returns the attribute preference list, defaulting to element text.
func (r Rule) Sources() []string {
	if len(r.Attrs) == 0 {
		return []string{Text}
	}
	return r.Attrs
}

// MetricRule binds a metric name to its single selector.
type MetricRule struct {
	Name string
	Rule Rule
}

// Catalog is an immutable rule table. Extend returns a new Catalog.
type Catalog struct {
	version string
	fields  map[Field]map[scrape.PageType][]Rule
	metrics []MetricRule
}

// Version reports the table revision, including applied extensions.
func (c *Catalog) Version() string {
	return c.version
}

// Rules returns the ordered rules for field on pageType, falling back to the unknown-page entry.
func (c *Catalog) Rules(field Field, pageType scrape.PageType) []Rule {
	byType := c.fields[field]
	if rules, ok := byType[pageType]; ok && len(rules) > 0 {
		return cloneRules(rules)
	}
	return cloneRules(byType[scrape.PageTypeUnknown])
}

// Metrics returns the metric rules in evaluation order.
func (c *Catalog) Metrics() []MetricRule {
	out := make([]MetricRule, len(c.metrics))
	for i, m := range c.metrics {
		out[i] = MetricRule{Name: m.Name, Rule: cloneRule(m.Rule)}
	}
	return out
}

// Extension appends one rule to the table. It is the shape used by configuration files.
type Extension struct {
	Field    string   `mapstructure:"field"`
	PageType string   `mapstructure:"page_type"`
	Metric   string   `mapstructure:"metric"`
	Query    string   `mapstructure:"query"`
	Attrs    []string `mapstructure:"attrs"`
	MinLen   int      `mapstructure:"min_len"`
	MaxLen   int      `mapstructure:"max_len"`
}

// Extend returns a copy of c with the extensions appended after the existing rules.
func (c *Catalog) Extend(exts ...Extension) (*Catalog, error) {
	out := c.clone()
	for i, ext := range exts {
		if err := out.apply(ext); err != nil {
			return nil, fmt.Errorf("catalog extension %d: %w", i, err)
		}
	}
	if len(exts) > 0 {
		out.version = fmt.Sprintf("%s+%d", c.version, len(exts))
	}
	return out, nil
}

// FromConfig builds the default catalog with configured extensions applied.
func FromConfig(exts []Extension) (*Catalog, error) {
	return Default().Extend(exts...)
}

func (c *Catalog) apply(ext Extension) error {
	field := Field(strings.TrimSpace(ext.Field))
	if !slices.Contains(knownFields, field) {
		return fmt.Errorf("unknown field %q", ext.Field)
	}
	query := strings.TrimSpace(ext.Query)
	if query == "" {
		return fmt.Errorf("query is required")
	}
	if _, err := cascadia.Compile(query); err != nil {
		return fmt.Errorf("invalid selector %q: %w", query, err)
	}
	rule := Rule{Query: query, Attrs: slices.Clone(ext.Attrs), MinLen: ext.MinLen, MaxLen: ext.MaxLen}

	if field == FieldMetrics {
		name := strings.TrimSpace(ext.Metric)
		if name == "" {
			return fmt.Errorf("metric name is required for metrics rules")
		}
		for i := range c.metrics {
			if c.metrics[i].Name == name {
				c.metrics[i].Rule = rule
				return nil
			}
		}
		c.metrics = append(c.metrics, MetricRule{Name: name, Rule: rule})
		return nil
	}

	pageType := scrape.PageType(strings.TrimSpace(ext.PageType))
	if pageType == "" {
		pageType = scrape.PageTypeUnknown
	}
	if !pageType.Valid() {
		return fmt.Errorf("unknown page type %q", ext.PageType)
	}
	if c.fields[field] == nil {
		c.fields[field] = map[scrape.PageType][]Rule{}
	}
	c.fields[field][pageType] = append(c.fields[field][pageType], rule)
	return nil
}

func (c *Catalog) clone() *Catalog {
	out := &Catalog{
		version: c.version,
		fields:  make(map[Field]map[scrape.PageType][]Rule, len(c.fields)),
		metrics: make([]MetricRule, len(c.metrics)),
	}
	for field, byType := range c.fields {
		cp := make(map[scrape.PageType][]Rule, len(byType))
		for pt, rules := range byType {
			cp[pt] = cloneRules(rules)
		}
		out.fields[field] = cp
	}
	for i, m := range c.metrics {
		out.metrics[i] = MetricRule{Name: m.Name, Rule: cloneRule(m.Rule)}
	}
	return out
}

// PageTypes lists the page types with an explicit entry for field.
func (c *Catalog) PageTypes(field Field) []scrape.PageType {
	types := slices.Collect(maps.Keys(c.fields[field]))
	slices.Sort(types)
	return types
}

func cloneRules(rules []Rule) []Rule {
	if rules == nil {
		return nil
	}
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = cloneRule(r)
	}
	return out
}

func cloneRule(r Rule) Rule {
	r.Attrs = slices.Clone(r.Attrs)
	return r
}

package scrape

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Mode selects how far a request travels through the pipeline.
type Mode string

const (
	// ModeSimple scrapes, persists and delivers.
	ModeSimple Mode = "simple"
	// ModeVerified additionally forwards the record to the verification endpoint.
	ModeVerified Mode = "verified"
)

// PageType is the coarse content shape of a page.
type PageType string

const (
	PageTypeSocialPost  PageType = "social_post"
	PageTypeNewsArticle PageType = "news_article"
	PageTypeGeneric     PageType = "generic_page"
	PageTypeUnknown     PageType = "unknown"
)

// Valid reports whether p is one of the known page types.
func (p PageType) Valid() bool {
	switch p {
	case PageTypeSocialPost, PageTypeNewsArticle, PageTypeGeneric, PageTypeUnknown:
		return true
	}
	return false
}

const (
	// DefaultAuthor is used when no author candidate survives the catalog rules.
	DefaultAuthor = "Unknown author"
	// MainTextPlaceholder is used when neither primary text nor paragraphs were found.
	MainTextPlaceholder = "Content extracted from page"
	// ScrapedAtLayout is the local wall-clock format of Content.ScrapedAt.
	ScrapedAtLayout = "2006-01-02 15:04:05"
	// ClaimStatusUnknown is the status of a claim without a parsable status line.
	ClaimStatusUnknown = "UNKNOWN"
)

var (
	// ErrURLRequired is returned when a request carries no URL.
	ErrURLRequired = errors.New("URL is required")
	// ErrUnsupportedMode is returned for modes other than simple and verified.
	ErrUnsupportedMode = errors.New("unsupported mode")
	// ErrNotFound is returned by stores when a key has no record.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidRecord flags records violating the error/content exclusivity.
	ErrInvalidRecord = errors.New("invalid record")
)

// ParseMode maps a wire value onto a Mode. The empty string means simple.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeSimple:
		return ModeSimple, nil
	case ModeVerified:
		return ModeVerified, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, raw)
	}
}

// Request is one extraction request. It is built once per invocation and never mutated.
type Request struct {
	URL           string `json:"url"`
	CorrelationID string `json:"correlationId,omitempty"`
	Mode          Mode   `json:"mode"`
}

// NewRequest validates the raw envelope values and builds a Request.
func NewRequest(rawURL, correlationID, mode string) (Request, error) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return Request{}, ErrURLRequired
	}
	m, err := ParseMode(mode)
	if err != nil {
		return Request{}, err
	}
	return Request{
		URL:           u,
		CorrelationID: strings.TrimSpace(correlationID),
		Mode:          m,
	}, nil
}

// Job is the unit handed to out-of-band workers.
type Job struct {
	ID        string    `json:"id"`
	Request   Request   `json:"request"`
	Submitted time.Time `json:"submitted"`
}

// Ack is the immediate acknowledgment returned to the caller.
type Ack struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	URL           string `json:"url"`
	CorrelationID string `json:"correlationId,omitempty"`
	JobID         string `json:"jobId,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// Claim is one statement returned by the verification service.
type Claim struct {
	Text       string   `json:"claim"`
	Status     string   `json:"status"`
	Confidence int      `json:"confidence"`
	Summary    string   `json:"summary"`
	Sources    []string `json:"sources"`
}

// VerificationOutcome is attached to content records in verified mode.
type VerificationOutcome struct {
	Success     bool    `json:"verification_success"`
	StatusCode  int     `json:"verification_status_code"`
	RawResponse string  `json:"verification_response,omitempty"`
	Error       string  `json:"verification_error,omitempty"`
	Claims      []Claim `json:"claims"`
}

// Content holds everything extracted from a rendered page.
type Content struct {
	PageTitle        string            `json:"page_title"`
	PageType         PageType          `json:"page_type"`
	Author           string            `json:"author"`
	MainText         string            `json:"main_text"`
	Paragraphs       []string          `json:"paragraphs"`
	Images           []string          `json:"images"`
	Links            []string          `json:"links"`
	Metrics          map[string]string `json:"metrics"`
	Timestamp        *string           `json:"timestamp"`
	ScrapedAt        string            `json:"scraped_at"`
	ReadyForDispatch bool              `json:"ready_for_dispatch"`
	StoreID          string            `json:"store_id,omitempty"`
	SavedToStore     bool              `json:"saved_to_store"`

	*VerificationOutcome
}

// Record is the output of one orchestrator run. Exactly one of Error or Content is set.
type Record struct {
	URL            string `json:"url"`
	ScrapingMethod string `json:"scraping_method"`
	Error          string `json:"error,omitempty"`

	*Content
}

// NewErrorRecord builds the record returned when rendering fails.
func NewErrorRecord(url, method string, err error) Record {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Record{URL: url, ScrapingMethod: method, Error: msg}
}

// Failed reports whether r is an error record.
func (r Record) Failed() bool {
	return r.Error != ""
}

// Validate enforces that exactly one of Error and Content is populated.
func (r Record) Validate() error {
	switch {
	case r.Error != "" && r.Content != nil:
		return fmt.Errorf("%w: both error and content set", ErrInvalidRecord)
	case r.Error == "" && r.Content == nil:
		return fmt.Errorf("%w: neither error nor content set", ErrInvalidRecord)
	}
	return nil
}

// Clone returns a deep copy so collaborators never share slices or maps with the caller.
func (r Record) Clone() Record {
	out := r
	if r.Content == nil {
		return out
	}
	c := *r.Content
	c.Paragraphs = slices.Clone(r.Paragraphs)
	c.Images = slices.Clone(r.Images)
	c.Links = slices.Clone(r.Links)
	c.Metrics = maps.Clone(r.Metrics)
	if r.Timestamp != nil {
		ts := *r.Timestamp
		c.Timestamp = &ts
	}
	if r.VerificationOutcome != nil {
		v := r.VerificationOutcome.clone()
		c.VerificationOutcome = &v
	}
	out.Content = &c
	return out
}

// WithVerification returns a copy of r carrying the outcome. Error records are returned unchanged.
func (r Record) WithVerification(outcome VerificationOutcome) Record {
	out := r.Clone()
	if out.Content == nil {
		return out
	}
	v := outcome.clone()
	out.VerificationOutcome = &v
	return out
}

func (v VerificationOutcome) clone() VerificationOutcome {
	out := v
	if v.Claims == nil {
		out.Claims = []Claim{}
		return out
	}
	out.Claims = make([]Claim, len(v.Claims))
	for i, c := range v.Claims {
		c.Sources = slices.Clone(c.Sources)
		out.Claims[i] = c
	}
	return out
}

// Package detector inspects rendered pages for login walls and static responses for client-side rendering.
package detector

import (
	"bytes"
	"net/http"
	"strings"
)

// DefaultBlockedMarkers are the phrases that suggest a login or registration gate.
var DefaultBlockedMarkers = []string{
	"sign up",
	"sign in",
	"log in",
	"login",
	"create account",
	"register",
}

// Heuristic implements rule-based checks for blocked pages and static-to-headless promotion.
type Heuristic struct {
	BodyLengthThreshold int
	markers             []string
}

// NewHeuristic creates a detector. A zero threshold uses 2048 bytes; nil markers use DefaultBlockedMarkers.
func NewHeuristic(threshold int, markers []string) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	if len(markers) == 0 {
		markers = DefaultBlockedMarkers
	}
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lowered = append(lowered, m)
		}
	}
	return &Heuristic{BodyLengthThreshold: threshold, markers: lowered}
}

// Blocked reports whether rendered text contains any login or signup marker, case-insensitively.
func (h *Heuristic) Blocked(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range h.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("id=\"react-root\""),
}

// ShouldPromote decides whether a static response needs a headless render.
func (h *Heuristic) ShouldPromote(statusCode int, body []byte) bool {
	if statusCode != http.StatusOK {
		return false
	}
	if len(body) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Unterminated tag: the rest of the document is script.
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1
		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}

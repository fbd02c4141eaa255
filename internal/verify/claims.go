package verify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

const claimMarker = "Claim:"

const (
	prefixStatus     = "Status:"
	prefixConfidence = "Confidence:"
	prefixSummary    = "Summary:"
	prefixSources    = "Sources:"
)

var (
	bracketToken = regexp.MustCompile(`\[([^\[\]]+)\](\([^()\s]*\))?`)
	leadingInt   = regexp.MustCompile(`^\d+`)
	bareDomain   = regexp.MustCompile(`^[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)+(/\S*)?$`)
)

// ParseClaims scans a verification response into claims. It never panics; malformed input yields fewer claims
// or claims with defaulted fields.
func ParseClaims(body string) (claims []scrape.Claim) {
	claims = []scrape.Claim{}
	defer func() {
		if recover() != nil && claims == nil {
			claims = []scrape.Claim{}
		}
	}()

	segments := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), claimMarker)
	// Text before the first marker is preamble.
	for _, seg := range segments[1:] {
		claims = append(claims, parseSegment(seg))
	}
	return claims
}

func parseSegment(seg string) scrape.Claim {
	lines := strings.Split(seg, "\n")
	claim := scrape.Claim{
		Text:    strings.TrimSpace(lines[0]),
		Status:  scrape.ClaimStatusUnknown,
		Sources: []string{},
	}
	var sourceLines []string
	inSources := false
	for _, raw := range lines[1:] {
		line := stripBullet(strings.TrimSpace(raw))
		switch {
		case strings.HasPrefix(line, prefixStatus):
			inSources = false
			if v := strings.TrimSpace(strings.TrimPrefix(line, prefixStatus)); v != "" {
				claim.Status = v
			}
		case strings.HasPrefix(line, prefixConfidence):
			inSources = false
			claim.Confidence = parseConfidence(strings.TrimPrefix(line, prefixConfidence))
		case strings.HasPrefix(line, prefixSummary):
			inSources = false
			claim.Summary = strings.TrimSpace(strings.TrimPrefix(line, prefixSummary))
		case strings.HasPrefix(line, prefixSources):
			inSources = true
			sourceLines = append(sourceLines, strings.TrimPrefix(line, prefixSources))
		case inSources && line != "":
			sourceLines = append(sourceLines, line)
		}
	}
	claim.Sources = parseSources(strings.Join(sourceLines, "\n"))
	return claim
}

// parseConfidence reads the leading integer and clamps it to 0..100. Anything else is 0.
func parseConfidence(raw string) int {
	digits := leadingInt.FindString(strings.TrimSpace(raw))
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return min(n, 100)
}

// parseSources prefers plain [Name] tokens that are not URLs and falls back to [Name](url) link names.
func parseSources(text string) []string {
	var plain, linked []string
	for _, m := range bracketToken.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		if m[2] != "" {
			linked = append(linked, name)
			continue
		}
		if !looksLikeURL(name) {
			plain = append(plain, name)
		}
	}
	if len(plain) > 0 {
		return dedupe(plain)
	}
	return dedupe(linked)
}

func looksLikeURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "://") || strings.HasPrefix(lower, "www.") || bareDomain.MatchString(s)
}

func stripBullet(line string) string {
	for _, bullet := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, bullet) {
			return strings.TrimSpace(strings.TrimPrefix(line, bullet))
		}
	}
	return line
}

func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

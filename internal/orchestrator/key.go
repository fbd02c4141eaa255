package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

var statusSegment = regexp.MustCompile(`(?:^|/)status/(\d+)(?:/|$)`)

// URLHasher is the default key hasher: the hex SHA-256 digest of the URL bytes.
type URLHasher struct{}

// Hash implements scrape.Hasher.
func (URLHasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// StoreKey derives the result-store key for rawURL: the post id from a /status/<digits> path segment, else
// "url-" plus the first 16 hex digits of the URL hash, else "ts-" plus the current Unix nanoseconds. It never
// panics. Hash and timestamp keys may collide or differ across retries.
func StoreKey(rawURL string, hasher scrape.Hasher, clock scrape.Clock) (key string) {
	defer func() {
		if recover() != nil {
			key = fmt.Sprintf("ts-%d", time.Now().UnixNano())
		}
	}()

	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	if m := statusSegment.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	if hasher != nil {
		if sum, err := hasher.Hash([]byte(rawURL)); err == nil && len(sum) >= 16 {
			return "url-" + sum[:16]
		}
	}
	return fmt.Sprintf("ts-%d", clock.Now().UnixNano())
}

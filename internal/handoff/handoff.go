// Package handoff holds the out-of-band worker handoff backends. Every backend is fire-and-forget: a nil error from
// Schedule only means the job was accepted for scheduling.
package handoff

import (
	"context"
	"errors"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Backend names a handoff backend in configuration.
type Backend string

// Backends.
const (
	BackendLocal  Backend = "local"
	BackendPubSub Backend = "pubsub"
	BackendHTTP   Backend = "http"
	BackendNone   Backend = "none"
)

// ErrNoWorker is returned by None.
var ErrNoWorker = errors.New("no out-of-band worker configured")

// None never schedules, so every job takes the in-process fallback.
type None struct{}

// Schedule always fails with ErrNoWorker.
func (None) Schedule(context.Context, scrape.Job) error {
	return ErrNoWorker
}

// Package system provides a real clock implementation.
package system

import (
	"context"
	"time"
)

// Clock implements scrape.Clock using the wall clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current local time. Records format it in the host's zone.
func (Clock) Now() time.Time {
	return time.Now()
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func (Clock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

package scrape

import (
	"context"
	"time"
)

// ScrollPosition names a vertical scroll target.
type ScrollPosition int

const (
	ScrollTop ScrollPosition = iota
	ScrollBottom
)

// Page is a rendered page session. Callers must Close it on every exit path.
type Page interface {
	URL() string
	Method() string
	Title(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	ScrollTo(ctx context.Context, pos ScrollPosition) error
	Close() error
}

// RenderProvider loads a URL into a Page, bounded by timeout.
type RenderProvider interface {
	Load(ctx context.Context, url string, timeout time.Duration) (Page, error)
	Method() string
}

// ResultStore persists records by key and returns a store-specific identifier.
type ResultStore interface {
	Put(ctx context.Context, key string, record Record) (string, error)
	Get(ctx context.Context, key string) (Record, error)
}

// Response is what a NotificationSink got back from the remote side.
type Response struct {
	StatusCode int
	Body       []byte
}

// NotificationSink posts JSON payloads to remote endpoints.
type NotificationSink interface {
	Post(ctx context.Context, url string, payload any, timeout time.Duration) (Response, error)
}

// Handoff schedules a job on an out-of-band worker. A nil error means the job was accepted for scheduling,
// not that it ran.
type Handoff interface {
	Schedule(ctx context.Context, job Job) error
}

// Queue buffers jobs for the in-process worker pool.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
}

// Clock abstracts wall time and best-effort waits.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

// Hasher hashes bytes into a hex digest.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator creates unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Package main hosts the postscraper entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts POST /v1/scrape, validates the envelope, writes the acknowledgment and
//     flushes it before any extraction starts. The job is then handed to the dispatcher.
//   - Dispatch: the configured handoff (local queue, Pub/Sub topic, HTTP worker or none) gets the first chance to
//     schedule the job. When it cannot, the job runs on a bounded in-process background group that survives the
//     request context.
//   - Extraction: internal/orchestrator renders the page (headless Chrome, a static GET, or a static probe promoted to
//     headless), waits for it to settle, works around login walls, classifies the URL, extracts fields from the
//     selector catalog, persists the record and optionally forwards it for verification.
//   - Delivery: the final record is posted once to the result webhook. Delivery failures are logged and never retried.
//   - Plumbing: Viper loads config from file and SCRAPER_* env vars; zap provides structured logs; Prometheus metrics
//     are served on /metrics; OpenTelemetry carries trace context across the Pub/Sub handoff.
//
// Quick checklist:
//   - Run the service: go run ./cmd/postscraper serve --config config.yaml (PORT overrides server.port).
//   - One-shot: go run ./cmd/postscraper scrape https://x.com/someone/status/123 --mode verified.
//   - Persistence: storage.backend selects memory, local, gcs or postgres.
package main

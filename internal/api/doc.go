// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - POST /v1/scrape accepts an invocation envelope, acknowledges it, then dispatches out of band.
//   - POST /v1/scrape/sync runs the extraction in the request and returns the record.
//   - POST /v1/worker runs a handed-off job (raw job JSON or a Pub/Sub push envelope).
//   - POST /v1/jobs enqueues a handed-off job on this instance's worker pool.
//   - GET /v1/results/{key} reads a stored record.
//   - GET /healthz, /readyz for probes and GET /metrics for Prometheus scraping.
package api

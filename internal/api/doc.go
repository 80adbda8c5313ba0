// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/ingest/{slug} to trigger a collection, or "all".
//   - GET /v1/progress, /v1/progress/{slug} for polling live progress, and
//     /v1/progress/stream (SSE) or /v1/progress/ws for a pushed feed.
//   - GET /v1/status for stored versus expected counts.
//   - GET /v1/runs and /v1/runs/{id} for run history via the RunRepository.
package api

// Package main hosts the hadith-ingest entrypoint.
//
// Architecture overview:
//   - Sources: a structured adapter reads one JSON document per edition section from the hadith CDN; an
//     unstructured adapter scrapes sunnah.com pages. Both share a Colly probe fetcher, a per-host rate limiter and
//     a retry policy. The HTML adapter can promote a page to a headless Chromedp fetch when the heuristic detector
//     scores the probe as script-rendered.
//   - Parsing & reconciliation: a parser bank turns payloads into candidates, and the reconciler decides per
//     candidate whether to create, link or upgrade a stored record. Merges only ever raise quality.
//   - Persistence: records, books, chapters and run history go to Postgres (pgx), SQLite (sqlx) or memory. Raw
//     payloads are optionally archived to GCS, a local directory or memory, content-addressed by SHA-256.
//   - Jobs & progress: triggers flow through a bounded queue to a worker pool. Each job drives a progress tracker
//     through fetching, books, hadiths, backfill and totals; the registry keeps snapshots for a TTL and the hub fans
//     lifecycle events out to the run store, Prometheus and the log.
//   - HTTP: chi serves /v1/ingest/{slug}, /v1/status, /v1/collections, /v1/runs and /v1/progress, plus a one-second
//     SSE and WebSocket push of every job snapshot.
//
// Quick checklist:
//   - Configure with a YAML file (--config) or HADITH_* env vars, e.g. HADITH_STORE_DRIVER=postgres and
//     HADITH_STORE_DSN.
//   - Serve: hadith-ingest serve. One-off: hadith-ingest ingest sahih-bukhari (or "all"); add
//     --source sunnah to scrape sunnah.com pages instead of the CDN.
//   - Check completeness: hadith-ingest status -o yaml.
package main

import (
	"github.com/JakeFAU/hadith-ingest/cmd"
)

func main() {
	cmd.Execute()
}

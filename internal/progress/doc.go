// Package progress tracks ingestion jobs. A Registry holds the live,
// per-collection view that pollers and streams read; each job mutates its
// entry through a Tracker, which also emits Events into a Hub. The Hub batches
// events on a background goroutine and fans them out to sinks such as
// structured logs, Prometheus collectors, and the run-history store.
package progress

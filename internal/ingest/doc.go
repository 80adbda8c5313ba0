// Package ingest runs collection ingestion jobs: fetch every section of a
// collection, parse and reconcile it against what is stored, write the
// outcome in batches, backfill missing original-language text, and
// recompute derived totals. A Manager accepts job triggers, guards against
// concurrent jobs for one collection, and publishes a completion notice.
package ingest

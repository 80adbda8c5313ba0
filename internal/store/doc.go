// Package store defines interfaces for persistence dependencies: the corpus
// store the ingestion pipeline writes into and the run-history repository
// fed by the progress sinks. Implementations live under internal/storage;
// this package must not import database drivers or concrete clients.
package store

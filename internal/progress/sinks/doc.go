// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, and the run-history repository.
package sinks

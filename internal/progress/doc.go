// Package progress carries analysis lifecycle events from workers to sinks.
// Workers emit through a non-blocking Hub which batches events on a background
// goroutine and hands them to pluggable sinks such as structured logs or
// Prometheus collectors.
package progress

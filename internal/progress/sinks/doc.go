// Package sinks contains progress.Sink implementations for logs and metrics.
package sinks

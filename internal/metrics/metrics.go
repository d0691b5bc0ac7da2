// Package metrics exposes Prometheus instrumentation for the client.
// Counters live in the default registry; embedding applications decide
// whether and where to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestAttempts counts physical HTTP attempts by provider and outcome
	// (success, retryable, fatal).
	RequestAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelstream",
		Name:      "request_attempts_total",
		Help:      "Physical HTTP attempts, including retries.",
	}, []string{"provider", "outcome"})

	// RetriesExhausted counts logical requests that failed after the full
	// attempt budget.
	RetriesExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelstream",
		Name:      "retries_exhausted_total",
		Help:      "Logical requests that exhausted their retry budget.",
	}, []string{"provider"})

	// StreamChunks counts live chunks delivered to callers.
	StreamChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelstream",
		Name:      "stream_chunks_total",
		Help:      "Streamed chunks delivered to callers.",
	}, []string{"provider"})

	// StreamFailures counts streams aborted by a decode or protocol error.
	StreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelstream",
		Name:      "stream_failures_total",
		Help:      "Streams aborted before graceful termination.",
	}, []string{"provider"})
)

// Outcome labels for RequestAttempts.
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomeFatal     = "fatal"
)

// Package metrics exposes the Prometheus instrumentation for ingestion and
// analysis. Collectors are registered on the default registry at program
// start.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResourcesIngested counts resources persisted per snapshot ingest.
	ResourcesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cloudlens",
		Subsystem: "ingest",
		Name:      "resources_total",
		Help:      "Resources persisted by the ingestion pipeline.",
	})

	// ParseErrors counts files the ingestion pipeline could not parse.
	ParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cloudlens",
		Subsystem: "ingest",
		Name:      "parse_errors_total",
		Help:      "Export files that failed to parse.",
	})

	// IngestDuration observes wall-clock time per ingest run.
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cloudlens",
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Ingest run duration.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// AnalysisDuration observes analysis durations labelled by operation
	// (audit, topology, reachability, diff, tags).
	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cloudlens",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Analysis duration by operation.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"operation"})

	// FindingsTotal counts audit findings by severity.
	FindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudlens",
		Subsystem: "audit",
		Name:      "findings_total",
		Help:      "Audit findings by severity.",
	}, []string{"severity"})
)

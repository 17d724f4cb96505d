package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal tracks completed ingestion jobs by outcome.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_jobs_total",
		Help: "Total ingestion jobs completed, labeled by outcome.",
	}, []string{"outcome"})
	// JobDuration observes end-to-end job latency.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingestd_job_duration_seconds",
		Help:    "End-to-end duration of ingestion jobs.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
	// FetchesTotal tracks raw HTTP fetches by result.
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_fetches_total",
		Help: "Total plain HTTP fetches, labeled by result.",
	}, []string{"result"})
	// RendersTotal tracks headless browser renders by result.
	RendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_renders_total",
		Help: "Total headless renders, labeled by result.",
	}, []string{"result"})
	// GenerationsTotal tracks skill generation attempts by result.
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_skill_generations_total",
		Help: "Total skill generation attempts, labeled by result.",
	}, []string{"result"})
	// ArticlesTotal tracks ingestion decisions.
	ArticlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_articles_total",
		Help: "Total article ingestion decisions.",
	}, []string{"decision"})
	// SourceTransitionsTotal tracks health state transitions.
	SourceTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_source_transitions_total",
		Help: "Total source health state transitions.",
	}, []string{"from", "to"})
)

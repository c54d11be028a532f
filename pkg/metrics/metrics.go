package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts served requests by route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicefaq_http_requests_total",
		Help: "Total number of HTTP requests served",
	}, []string{"method", "route", "status"})

	// HTTPDuration tracks end to end handler latency.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicefaq_http_request_duration_seconds",
		Help:    "Time taken to serve HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// PipelineStepDuration covers the embed, retrieve and generate round trips.
	PipelineStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicefaq_pipeline_step_duration_seconds",
		Help:    "Latency of each external call made by the answer pipeline",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"step"})

	// PipelineOutcomes counts answered, fallback, invalid and failed queries.
	PipelineOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicefaq_pipeline_outcomes_total",
		Help: "Answer pipeline results by outcome",
	}, []string{"outcome"})

	// VoiceEvents counts webhook messages received from the voice platform.
	VoiceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicefaq_voice_events_total",
		Help: "Voice platform webhook messages by type",
	}, []string{"type"})

	// IngestedEntries counts FAQ entries written by the ingestion pipeline.
	IngestedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicefaq_ingested_entries_total",
		Help: "FAQ entries upserted into the knowledge store",
	})
)

// Pipeline outcome labels.
const (
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

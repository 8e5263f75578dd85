// Package metrics exposes Prometheus instrumentation for the decision
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peregrine_decisions_total",
		Help: "Total number of decisions produced, labelled by action.",
	}, []string{"action"})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peregrine_alerts_total",
		Help: "Total number of alerts raised, labelled by severity.",
	}, []string{"severity"})

	PipelineFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peregrine_pipeline_failures_total",
		Help: "Total number of failed pipeline invocations, labelled by stage.",
	}, []string{"stage"})

	AdvisorFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peregrine_advisor_fallbacks_total",
		Help: "Total number of advisor calls that degraded to a zero delta.",
	})

	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "peregrine_pipeline_duration_ms",
		Help:    "End-to-end decision pipeline latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)

package predict

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "injuryrisk_evaluations_total",
		Help: "Total number of completed evaluations by final risk level.",
	}, []string{"level"})
	evaluationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "injuryrisk_evaluations_failed_total",
		Help: "Total number of evaluations that returned an error.",
	}, []string{"reason"})
	ruleTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "injuryrisk_safety_rule_triggers_total",
		Help: "Total number of safety rule triggers by rule id.",
	}, []string{"rule"})
	levelOverrides = promauto.NewCounter(prometheus.CounterOpts{
		Name: "injuryrisk_level_overrides_total",
		Help: "Total number of evaluations where a safety rule changed the heuristic level.",
	})
	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "injuryrisk_evaluation_duration_seconds",
		Help:    "Duration of a single evaluation pass.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
)

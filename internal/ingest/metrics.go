package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workoutsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "injuryrisk_ingest_workouts_total",
		Help: "Workouts received by ingestion, by source and outcome.",
	}, []string{"source", "result"})
	metricsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "injuryrisk_ingest_daily_metrics_total",
		Help: "Daily metric rows inserted or changed by ingestion.",
	}, []string{"source"})
	recordsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "injuryrisk_ingest_rejected_records_total",
		Help: "Records dropped during normalization.",
	}, []string{"source"})
	ingestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "injuryrisk_ingest_failures_total",
		Help: "Ingest batches aborted by a storage error.",
	}, []string{"source"})
)

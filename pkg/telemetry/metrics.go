package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omd",
		Name:      "ingest_runs_total",
		Help:      "Ingestion runs by entry point and outcome.",
	}, []string{"entry", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "omd",
		Name:      "ingest_stage_duration_seconds",
		Help:      "Duration of each ingestion stage.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"stage", "outcome"})

	lakeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omd",
		Name:      "lake_writes_total",
		Help:      "Lake store calls by outcome (stored, skipped, failed).",
	}, []string{"outcome"})

	lakeBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "omd",
		Name:      "lake_written_bytes_total",
		Help:      "Bytes of parquet written to the lake, current copies only.",
	})

	reconcileTables = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omd",
		Name:      "reconcile_tables_total",
		Help:      "Tables visited by reconciliation passes, by outcome.",
	}, []string{"outcome"})

	progressDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "omd",
		Name:      "progress_events_dropped_total",
		Help:      "Progress events with no live observer.",
	})

	indexedDocuments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "omd",
		Name:      "vector_documents_indexed_total",
		Help:      "Documents written to the vector index.",
	})
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

func outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeOK
}

// RecordIngest counts one finished ingestion run.
func RecordIngest(entry string, err error) {
	ingestRuns.WithLabelValues(entry, outcome(err)).Inc()
}

// ObserveStage records how long stage took since start.
func ObserveStage(stage string, start time.Time, err error) {
	stageDuration.WithLabelValues(stage, outcome(err)).Observe(time.Since(start).Seconds())
}

// RecordLakeWrite counts one lake store call; size is the current copy.
func RecordLakeWrite(result string, size int64) {
	lakeWrites.WithLabelValues(result).Inc()
	if size > 0 {
		lakeBytes.Add(float64(size))
	}
}

// RecordReconciledTable counts one table visited by reconciliation.
func RecordReconciledTable(result string) {
	reconcileTables.WithLabelValues(result).Inc()
}

// RecordProgressDrop counts one undelivered progress event.
func RecordProgressDrop(string) {
	progressDrops.Inc()
}

// RecordIndexed counts documents written to the vector index.
func RecordIndexed(n int) {
	indexedDocuments.Add(float64(n))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_runs_total",
		Help: "Screener runs by outcome",
	}, []string{"outcome"})

	symbolsProcessedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_symbols_processed_total",
		Help: "Symbols whose batch was attempted",
	})

	symbolsScoredMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_symbols_scored_total",
		Help: "Symbols with enough history to be scored",
	})

	batchFailuresMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_batch_failures_total",
		Help: "Batches skipped because a fetch failed",
	})

	archiveErrorsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_archive_errors_total",
		Help: "Failed writes to the results archive",
	})

	lastRunKept = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "screener_last_run_kept",
		Help: "Rows written by the last successful run",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "screener_run_duration_seconds",
		Help:    "Wall time of complete runs",
		Buckets: prometheus.ExponentialBuckets(30, 2, 8),
	})

	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "screener_provider_request_seconds",
		Help:    "Latency of data provider calls",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"endpoint", "result"})

	// Internal counters
	processedSymbols uint64
	failedBatches    uint64
	lastProcessed    atomic.Int64
)

func IncrementProcessed(n int) {
	atomic.AddUint64(&processedSymbols, uint64(n))
	symbolsProcessedMetric.Add(float64(n))
	lastProcessed.Store(time.Now().Unix())
}

func IncrementScored() {
	symbolsScoredMetric.Inc()
}

func IncrementBatchFailures() {
	atomic.AddUint64(&failedBatches, 1)
	batchFailuresMetric.Inc()
}

func IncrementArchiveErrors() {
	archiveErrorsMetric.Inc()
}

func RecordRun(outcome string, duration time.Duration, kept int) {
	runsMetric.WithLabelValues(outcome).Inc()
	if outcome == "done" {
		runDuration.Observe(duration.Seconds())
		lastRunKept.Set(float64(kept))
	}
}

func ObserveProviderRequest(endpoint string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	providerDuration.WithLabelValues(endpoint, result).Observe(duration.Seconds())
}

// GetStats returns processed symbols, failed batches and the time of the
// last processed batch (zero before the first).
func GetStats() (uint64, uint64, time.Time) {
	var last time.Time
	if ts := lastProcessed.Load(); ts > 0 {
		last = time.Unix(ts, 0)
	}
	return atomic.LoadUint64(&processedSymbols),
		atomic.LoadUint64(&failedBatches),
		last
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// rainfall aggregation pipeline.
type Metrics struct {
	DurationsProcessed *prometheus.CounterVec // labels: outcome={success,failure}
	ProblemFiles       *prometheus.CounterVec // labels: reason={missing,empty file,corrupted file,skipped during sum}
	LayersSummed       prometheus.Histogram
	DurationSeconds    prometheus.Histogram
	PipelineRunning    prometheus.Gauge

	// Archive completeness scan results.
	ArchiveMissing prometheus.Gauge
	ArchiveCorrupt prometheus.Gauge

	// Curve number cache behavior.
	CNCacheLookups *prometheus.CounterVec // labels: result={hit,miss,error}

	ZonesUndefined prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.DurationsProcessed,
		m.ProblemFiles,
		m.LayersSummed,
		m.DurationSeconds,
		m.PipelineRunning,
		m.ArchiveMissing,
		m.ArchiveCorrupt,
		m.CNCacheLookups,
		m.ZonesUndefined,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DurationsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rain_etl",
			Name:      "durations_processed_total",
			Help:      "Cumulative durations processed, by outcome.",
		}, []string{"outcome"}),
		ProblemFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rain_etl",
			Name:      "problem_files_total",
			Help:      "Expected archive files that could not be used, by reason.",
		}, []string{"reason"}),
		LayersSummed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rain_etl",
			Name:      "layers_summed",
			Help:      "Number of hourly layers summed per cumulative raster.",
			Buckets:   []float64{1, 3, 6, 12, 24, 48, 72},
		}),
		DurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rain_etl",
			Name:      "duration_processing_seconds",
			Help:      "Wall time for one duration's aggregate-clip-stats cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rain_etl",
			Name:      "pipeline_running",
			Help:      "1 while a batch run is active, 0 otherwise.",
		}),
		ArchiveMissing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rain_etl",
			Name:      "archive_missing_files",
			Help:      "Missing files found by the last completeness scan.",
		}),
		ArchiveCorrupt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rain_etl",
			Name:      "archive_corrupt_files",
			Help:      "Corrupt files found by the last completeness scan.",
		}),
		CNCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rain_etl",
			Name:      "cn_cache_lookups_total",
			Help:      "Curve number cache resolutions, by result.",
		}, []string{"result"}),
		ZonesUndefined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rain_etl",
			Name:      "zones_undefined_total",
			Help:      "Zone statistic rows that came out undefined.",
		}),
	}
}

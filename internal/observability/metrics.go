package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_tracker"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion
// and the read-side API.
type Metrics struct {
	// Ingestion runs.
	IngestRuns          *prometheus.CounterVec // labels: outcome={completed,aborted,empty}
	IngestRunning       prometheus.Gauge
	IngestDuration      prometheus.Histogram
	LastSuccessfulRun   prometheus.Gauge
	StormsProcessed     prometheus.Counter
	StormFailures       *prometheus.CounterVec // labels: stage={validate,fetch,extract,convert,store}
	ArtifactsWritten    *prometheus.CounterVec // labels: kind={cone,track}
	ArtifactsEvicted    prometheus.Counter
	ArtifactsSuperseded prometheus.Counter

	// Live feed.
	FeedRequests *prometheus.CounterVec // labels: outcome={success,error,rejected}
	BreakerState prometheus.Gauge       // 0=closed, 1=half-open, 2=open

	// Aggregation.
	AggregateFilesSkipped prometheus.Counter
	FeaturesServed        prometheus.Counter

	// Advisory events.
	EventsPublished     prometheus.Counter
	EventPublishFailure prometheus.Counter

	// Shelter import geocoding.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_running",
			Help:      "1 while an ingestion run is in progress.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a complete ingestion run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LastSuccessfulRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_last_success_timestamp_seconds",
			Help:      "Unix time of the last ingestion run that reached the feed.",
		}),
		StormsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storms_processed_total",
			Help:      "Active storms visited by ingestion runs.",
		}),
		StormFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storm_failures_total",
			Help:      "Per-storm processing failures by stage.",
		}, []string{"stage"}),
		ArtifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_written_total",
			Help:      "GeoJSON artifacts written by kind.",
		}, []string{"kind"}),
		ArtifactsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_evicted_total",
			Help:      "Artifacts deleted because their storm left the active set.",
		}),
		ArtifactsSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_superseded_total",
			Help:      "Older advisory artifacts removed after a newer advisory was written.",
		}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "Active-storm feed requests by outcome.",
		}, []string{"outcome"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_breaker_state",
			Help:      "Feed circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		AggregateFilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_files_skipped_total",
			Help:      "Artifact files skipped during aggregation because they failed to parse.",
		}),
		FeaturesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_served_total",
			Help:      "Enriched features returned by the aggregate endpoint.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_events_published_total",
			Help:      "Advisory events written to Kafka.",
		}),
		EventPublishFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_event_publish_failures_total",
			Help:      "Advisory event batches that could not be written.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.IngestRuns,
		m.IngestRunning,
		m.IngestDuration,
		m.LastSuccessfulRun,
		m.StormsProcessed,
		m.StormFailures,
		m.ArtifactsWritten,
		m.ArtifactsEvicted,
		m.ArtifactsSuperseded,
		m.FeedRequests,
		m.BreakerState,
		m.AggregateFilesSkipped,
		m.FeaturesServed,
		m.EventsPublished,
		m.EventPublishFailure,
		m.GeocodeRequests,
		m.GeocodeAPIDuration,
	}
}

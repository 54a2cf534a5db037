// Package metrics provides Prometheus metrics for the pitwall fetch pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager manages all Prometheus metrics for a run.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Unit flow
	unitsByAction *prometheus.CounterVec
	unitOutcomes  *prometheus.CounterVec
	unitsPlanned  prometheus.Gauge

	// Provider calls
	fetchAttempts       prometheus.Histogram
	fetchRetries        prometheus.Counter
	providerRequests    *prometheus.CounterVec
	providerLatency     *prometheus.HistogramVec
	providerCacheHits   prometheus.Counter
	providerCacheMisses prometheus.Counter

	// Artifacts
	artifactsWritten *prometheus.CounterVec
	artifactRows     *prometheus.CounterVec
	artifactErrors   *prometheus.CounterVec
	emptyDatasets    *prometheus.CounterVec
	standingsErrors  *prometheus.CounterVec

	// Cache and ledger
	cachePrunes   prometheus.Counter
	ledgerLatency prometheus.Histogram
	ledgerErrors  prometheus.Counter

	// Ops listener
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	// Run
	runDuration       prometheus.Gauge
	runLastSuccess    prometheus.Gauge
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pitwall",
		subsystem:        "fetch",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.unitsByAction = auto.NewCounterVec(
		m.counterOpts("units_total", "Work units evaluated, by selector action"),
		[]string{"action"},
	)
	m.unitOutcomes = auto.NewCounterVec(
		m.counterOpts("unit_outcomes_total", "Fetched units by terminal outcome"),
		[]string{"outcome"},
	)
	m.unitsPlanned = auto.NewGauge(m.gaugeOpts("units_planned", "Work units in the current run grid"))

	m.fetchAttempts = auto.NewHistogram(m.histogramOpts(
		"fetch_attempts", "Provider attempts spent per fetched unit", []float64{1, 2, 3, 4, 5, 8},
	))
	m.fetchRetries = auto.NewCounter(m.counterOpts("fetch_retries_total", "Provider attempts that failed and were retried"))
	m.providerRequests = auto.NewCounterVec(
		m.counterOpts("provider_requests_total", "Upstream HTTP requests by endpoint and status code"),
		[]string{"endpoint", "status_code"},
	)
	m.providerLatency = auto.NewHistogramVec(
		m.histogramOpts("provider_request_duration_milliseconds", "Upstream HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint"},
	)
	m.providerCacheHits = auto.NewCounter(m.counterOpts("provider_cache_hits_total", "Provider responses served from the unit cache"))
	m.providerCacheMisses = auto.NewCounter(m.counterOpts("provider_cache_misses_total", "Provider responses fetched upstream"))

	m.artifactsWritten = auto.NewCounterVec(
		m.counterOpts("artifacts_written_total", "CSV artifacts written, by kind"),
		[]string{"kind"},
	)
	m.artifactRows = auto.NewCounterVec(
		m.counterOpts("artifact_rows_total", "Data rows written to CSV artifacts, by kind"),
		[]string{"kind"},
	)
	m.artifactErrors = auto.NewCounterVec(
		m.counterOpts("artifact_errors_total", "CSV artifact write failures, by kind"),
		[]string{"kind"},
	)
	m.emptyDatasets = auto.NewCounterVec(
		m.counterOpts("empty_datasets_total", "Datasets returned empty and not written, by kind"),
		[]string{"kind"},
	)
	m.standingsErrors = auto.NewCounterVec(
		m.counterOpts("standings_errors_total", "Standings fetch or write failures, by kind"),
		[]string{"kind"},
	)

	m.cachePrunes = auto.NewCounter(m.counterOpts("cache_prunes_total", "Unit cache directories removed"))
	m.ledgerLatency = auto.NewHistogram(m.histogramOpts(
		"ledger_write_latency_milliseconds", "Unit ledger write latency in milliseconds", m.histogramBuckets,
	))
	m.ledgerErrors = auto.NewCounter(m.counterOpts("ledger_errors_total", "Unit ledger read or write failures"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Requests served by the ops listener"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpLatency = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "Ops listener request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint"},
	)

	m.runDuration = auto.NewGauge(m.gaugeOpts("run_duration_seconds", "Wall time of the last run in seconds"))
	m.runLastSuccess = auto.NewGauge(m.gaugeOpts("run_last_success_unix", "Unix timestamp of the last run that finished without a fatal error"))
	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
}

// RecordUnit increments the units counter for a selector action.
func RecordUnit(action string) {
	globalManager.unitsByAction.WithLabelValues(action).Inc()
}

// RecordUnitOutcome increments the outcome counter.
func RecordUnitOutcome(outcome string) {
	globalManager.unitOutcomes.WithLabelValues(outcome).Inc()
}

// UpdateUnitsPlanned sets the size of the run grid.
func UpdateUnitsPlanned(n int) {
	globalManager.unitsPlanned.Set(float64(n))
}

// RecordFetchAttempts observes the attempts spent on one unit; attempts
// beyond the first are also counted as retries.
func RecordFetchAttempts(attempts int) {
	globalManager.fetchAttempts.Observe(float64(attempts))
	if attempts > 1 {
		globalManager.fetchRetries.Add(float64(attempts - 1))
	}
}

// RecordProviderRequest records an upstream request.
func RecordProviderRequest(endpoint, statusCode string, latencyMs float64) {
	globalManager.providerRequests.WithLabelValues(endpoint, statusCode).Inc()
	globalManager.providerLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// RecordProviderCache records a cache lookup.
func RecordProviderCache(hit bool) {
	if hit {
		globalManager.providerCacheHits.Inc()
		return
	}
	globalManager.providerCacheMisses.Inc()
}

// RecordArtifactWritten records a successful write of rows rows.
func RecordArtifactWritten(kind string, rows int) {
	globalManager.artifactsWritten.WithLabelValues(kind).Inc()
	globalManager.artifactRows.WithLabelValues(kind).Add(float64(rows))
}

// RecordArtifactError increments the write failure counter.
func RecordArtifactError(kind string) {
	globalManager.artifactErrors.WithLabelValues(kind).Inc()
}

// RecordEmptyDataset increments the empty dataset counter.
func RecordEmptyDataset(kind string) {
	globalManager.emptyDatasets.WithLabelValues(kind).Inc()
}

// RecordStandingsError increments the standings failure counter.
func RecordStandingsError(kind string) {
	globalManager.standingsErrors.WithLabelValues(kind).Inc()
}

// RecordCachePrune increments the prune counter.
func RecordCachePrune() {
	globalManager.cachePrunes.Inc()
}

// RecordLedgerLatency records a ledger write latency.
func RecordLedgerLatency(latencyMs float64) {
	globalManager.ledgerLatency.Observe(latencyMs)
}

// RecordLedgerError increments the ledger error counter.
func RecordLedgerError() {
	globalManager.ledgerErrors.Inc()
}

// UpdateRunDuration sets the wall time of the run.
func UpdateRunDuration(seconds float64) {
	globalManager.runDuration.Set(seconds)
}

// UpdateRunLastSuccess sets the last successful run timestamp.
func UpdateRunLastSuccess(unix int64) {
	globalManager.runLastSuccess.Set(float64(unix))
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordHTTPRequest records a request served by the ops listener.
func RecordHTTPRequest(endpoint, method, statusCode string, latencyMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the custom registry in the exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the custom registry to path in the node_exporter
// textfile format, creating the parent directory.
func WriteTextfile(path string) error {
	return writeTextfile(path, customRegistry)
}

func writeTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return nil
}

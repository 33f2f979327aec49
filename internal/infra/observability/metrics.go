package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ingestion pipeline.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration       *prometheus.HistogramVec
	externalErrors        *prometheus.CounterVec
	cacheHits             *prometheus.CounterVec
	cacheMisses           *prometheus.CounterVec
	statementsUploaded    prometheus.Counter
	statementsProcessed   *prometheus.CounterVec
	transactionsExtracted *prometheus.CounterVec
	categorizations       *prometheus.CounterVec
	feedbackSubmissions   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finlight_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finlight_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finlight_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finlight_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		statementsUploaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "finlight_statements_uploaded_total",
				Help: "Total bank statements uploaded.",
			},
		),
		statementsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finlight_statements_processed_total",
				Help: "Total statement processing runs, by outcome.",
			},
			[]string{"outcome"},
		),
		transactionsExtracted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finlight_transactions_extracted_total",
				Help: "Total transactions extracted from statements, by format.",
			},
			[]string{"format"},
		),
		categorizations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finlight_categorizations_total",
				Help: "Total categorization calls, by mode and status.",
			},
			[]string{"mode", "status"},
		),
		feedbackSubmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finlight_feedback_submissions_total",
				Help: "Total user feedback submissions, by status.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrStatementUploaded counts one uploaded statement.
func (m *Metrics) IncrStatementUploaded() {
	m.statementsUploaded.Inc()
}

// IncrStatementProcessed counts one processing run ("processed" or "failed").
func (m *Metrics) IncrStatementProcessed(outcome string) {
	m.statementsProcessed.WithLabelValues(outcome).Inc()
}

// AddTransactionsExtracted counts transactions extracted for a format.
func (m *Metrics) AddTransactionsExtracted(format string, n int) {
	m.transactionsExtracted.WithLabelValues(format).Add(float64(n))
}

// IncrCategorization counts one categorization call.
// mode is "single" or "batch"; status is "ok" or "unavailable".
func (m *Metrics) IncrCategorization(mode, status string) {
	m.categorizations.WithLabelValues(mode, status).Inc()
}

// IncrFeedback counts one feedback submission ("ok" or "failed").
func (m *Metrics) IncrFeedback(status string) {
	m.feedbackSubmissions.WithLabelValues(status).Inc()
}

// CategorizationCount returns the current value of a categorization counter.
func (m *Metrics) CategorizationCount(mode, status string) float64 {
	counter := m.categorizations.WithLabelValues(mode, status)
	pb := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(pb); err != nil {
		return 0
	}
	if pb.Counter != nil && pb.Counter.Value != nil {
		return *pb.Counter.Value
	}
	return 0
}

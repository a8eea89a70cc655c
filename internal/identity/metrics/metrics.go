package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity store.
type Metrics struct {
	// Batch outcomes: "succeeded", "failed_permanent", "failed_exhausted"
	BatchOutcomes *prometheus.CounterVec

	// Attempts per batch, including the first one
	BatchAttempts prometheus.Histogram

	// Transient failures that triggered a retry
	BatchRetries prometheus.Counter

	BatchDuration prometheus.Histogram

	RecordsWritten prometheus.Counter
	ResultsSkipped prometheus.Counter
	AuditEntries   prometheus.Counter

	ManualEdits *prometheus.CounterVec

	// Tiers handed to readers
	QualityServed *prometheus.CounterVec

	// Change feed publish results: "published", "failed"
	ChangeFeed *prometheus.CounterVec

	RefreshEnqueued prometheus.Counter
}

// New registers all identity metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers all identity metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BatchOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletid_upsert_batches_total",
			Help: "Batch upserts by final outcome",
		}, []string{"outcome"}),

		BatchAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletid_upsert_batch_attempts",
			Help:    "Storage attempts needed per batch upsert",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),

		BatchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletid_upsert_batch_retries_total",
			Help: "Transient storage failures that triggered a batch retry",
		}),

		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletid_upsert_batch_duration_seconds",
			Help:    "Duration of batch upserts including retries",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		RecordsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletid_records_written_total",
			Help: "Identity records written by committed upserts",
		}),

		ResultsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletid_results_skipped_total",
			Help: "Provider results dropped before merging (invalid wallet or no social field)",
		}),

		AuditEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletid_audit_entries_total",
			Help: "Audit entries committed alongside record writes",
		}),

		ManualEdits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletid_manual_edits_total",
			Help: "Manual identity edits by outcome",
		}, []string{"outcome"}),

		QualityServed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletid_quality_served_total",
			Help: "Quality tiers returned to readers",
		}, []string{"quality"}),

		ChangeFeed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletid_changefeed_entries_total",
			Help: "Audit entries handed to the change feed by result",
		}, []string{"result"}),

		RefreshEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletid_refresh_enqueued_total",
			Help: "Wallets enqueued for background re-enrichment",
		}),
	}
}

// ObserveBatch records the final outcome of one batch upsert.
func (m *Metrics) ObserveBatch(outcome string, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchOutcomes.WithLabelValues(outcome).Inc()
	m.BatchAttempts.Observe(float64(attempts))
	m.BatchDuration.Observe(d.Seconds())
}

// IncrementRetries counts one transient failure that will be retried.
func (m *Metrics) IncrementRetries() {
	if m != nil {
		m.BatchRetries.Inc()
	}
}

// AddWritten records committed record and audit counts.
func (m *Metrics) AddWritten(records, audits int) {
	if m == nil {
		return
	}
	m.RecordsWritten.Add(float64(records))
	m.AuditEntries.Add(float64(audits))
}

// AddSkipped counts results dropped before merging.
func (m *Metrics) AddSkipped(n int) {
	if m != nil && n > 0 {
		m.ResultsSkipped.Add(float64(n))
	}
}

// IncrementManualEdit records a manual edit outcome ("ok" or "error").
func (m *Metrics) IncrementManualEdit(outcome string) {
	if m != nil {
		m.ManualEdits.WithLabelValues(outcome).Inc()
	}
}

// IncrementQuality counts one classified read.
func (m *Metrics) IncrementQuality(quality string) {
	if m != nil {
		m.QualityServed.WithLabelValues(quality).Inc()
	}
}

// AddChangeFeed counts audit entries by change feed result.
func (m *Metrics) AddChangeFeed(result string, n int) {
	if m != nil && n > 0 {
		m.ChangeFeed.WithLabelValues(result).Add(float64(n))
	}
}

// AddRefreshEnqueued counts wallets handed to the refresh queue.
func (m *Metrics) AddRefreshEnqueued(n int) {
	if m != nil && n > 0 {
		m.RefreshEnqueued.Add(float64(n))
	}
}

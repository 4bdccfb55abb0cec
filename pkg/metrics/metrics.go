package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Number of transactions waiting in the priority queue",
		},
	)

	QueueLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_queue_live_total",
			Help: "Number of live (queued, processing or requeued) transactions",
		},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_transactions_total",
			Help: "Total number of transactions by terminal status",
		},
		[]string{"status"},
	)

	// Submission metrics
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_submissions_total",
			Help: "Total number of submissions by outcome",
		},
		[]string{"outcome"},
	)

	SubmissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_submission_duration_seconds",
			Help:    "Time taken to accept or reject a submission in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RPC metrics
	RPCAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rpc_attempts_total",
			Help: "Total number of outbound RPC attempts by chain and outcome",
		},
		[]string{"chain_id", "outcome"},
	)

	RPCDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_rpc_duration_seconds",
			Help:    "Outbound RPC call duration in seconds by chain",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain_id"},
	)

	ConfirmationWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_confirmation_wait_seconds",
			Help:    "Time spent waiting for receipt confirmations in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Circuit breaker metrics
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_breaker_state",
			Help: "Circuit breaker state by operation (0 = closed, 1 = half-open, 2 = open)",
		},
		[]string{"operation"},
	)

	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_breaker_transitions_total",
			Help: "Total number of circuit breaker transitions by operation and target state",
		},
		[]string{"operation", "to"},
	)

	// Rate limiter metrics
	RateLimitDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_denials_total",
			Help: "Total number of admissions denied by operation",
		},
		[]string{"operation"},
	)

	// Storage metrics
	AuditRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_audit_records_total",
			Help: "Total number of audit records appended",
		},
	)

	IntegrityViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_integrity_violations_total",
			Help: "Total number of integrity violations detected",
		},
	)

	BackupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_backups_total",
			Help: "Total number of backup runs by outcome",
		},
		[]string{"outcome"},
	)

	// Worker metrics
	WorkersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_workers_busy",
			Help: "Number of workers currently processing a transaction",
		},
	)

	ProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_processing_duration_seconds",
			Help:    "End-to-end processing time per transaction by chain",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"chain_id"},
	)

	// Config metrics
	ConfigReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_config_reloads_total",
			Help: "Total number of config reloads by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueLive)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(SubmissionDuration)
	prometheus.MustRegister(RPCAttemptsTotal)
	prometheus.MustRegister(RPCDuration)
	prometheus.MustRegister(ConfirmationWait)
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(BreakerTransitionsTotal)
	prometheus.MustRegister(RateLimitDenialsTotal)
	prometheus.MustRegister(AuditRecordsTotal)
	prometheus.MustRegister(IntegrityViolationsTotal)
	prometheus.MustRegister(BackupsTotal)
	prometheus.MustRegister(WorkersBusy)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(ConfigReloadsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

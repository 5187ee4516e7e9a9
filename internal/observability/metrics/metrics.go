package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "onboarding_"

	resultSuccess = "success"
	resultError   = "error"
	resultIgnored = "ignored"
	resultStale   = "stale"
)

var (
	registerOnce sync.Once

	transitionsTotal *prometheus.CounterVec

	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec

	formulaValidations *prometheus.CounterVec

	storeWrites *prometheus.CounterVec
	storeLoads  *prometheus.CounterVec

	submissionsTotal  *prometheus.CounterVec
	submissionLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	activeSessions prometheus.Gauge
)

// Init registers wizard metrics and, when db is set, store-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		transitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "wizard_transitions_total",
				Help: "Total wizard step transitions by kind and result",
			},
			[]string{"kind", "result"},
		)

		gatewayRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_requests_total",
				Help: "Total backend requests by operation and result",
			},
			[]string{"operation", "result"},
		)
		gatewayLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "gateway_latency_seconds",
				Help:    "Backend request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)

		formulaValidations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "formula_validations_total",
				Help: "Total debounced formula validations by outcome",
			},
			[]string{"outcome"},
		)

		storeWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_writes_total",
				Help: "Total wizard state writes by result",
			},
			[]string{"result"},
		)
		storeLoads = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_loads_total",
				Help: "Total wizard state hydrations by outcome",
			},
			[]string{"outcome"},
		)

		submissionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "submissions_total",
				Help: "Total onboarding submissions by result",
			},
			[]string{"result"},
		)
		submissionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "submission_latency_seconds",
				Help:    "Onboarding submission latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total review exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Review export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		activeSessions = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_sessions",
				Help: "Wizard sessions held in memory",
			},
		)

		prometheus.MustRegister(
			transitionsTotal,
			gatewayRequests,
			gatewayLatency,
			formulaValidations,
			storeWrites,
			storeLoads,
			submissionsTotal,
			submissionLatency,
			exportTotal,
			exportLatency,
			activeSessions,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncTransition counts a wizard transition attempt.
func IncTransition(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if transitionsTotal != nil {
		transitionsTotal.WithLabelValues(kind, result).Inc()
	}
}

// ObserveGateway records a backend call.
func ObserveGateway(operation, result string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if gatewayRequests != nil {
		gatewayRequests.WithLabelValues(operation, result).Inc()
	}
	if gatewayLatency != nil {
		gatewayLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// IncFormulaValidation counts a formula validation outcome.
func IncFormulaValidation(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if formulaValidations != nil {
		formulaValidations.WithLabelValues(outcome).Inc()
	}
}

// IncStoreWrite counts a persisted state write.
func IncStoreWrite(result string) {
	if result == "" {
		result = resultSuccess
	}
	if storeWrites != nil {
		storeWrites.WithLabelValues(result).Inc()
	}
}

// IncStoreLoad counts a hydration by outcome (restored, empty, corrupt, error).
func IncStoreLoad(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if storeLoads != nil {
		storeLoads.WithLabelValues(outcome).Inc()
	}
}

// ObserveSubmission records a submission attempt.
func ObserveSubmission(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if submissionsTotal != nil {
		submissionsTotal.WithLabelValues(result).Inc()
	}
	if submissionLatency != nil {
		submissionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// SetActiveSessions sets the in-memory session gauge.
func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	if activeSessions != nil {
		activeSessions.Set(float64(count))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultIgnored = resultIgnored
	ResultStale   = resultStale
)

package metrics

import (
	"time"

	pkgerrors "github.com/mercadito-app/mercadito-backend/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records outcomes of top-level ledger operations.
type LedgerMetrics struct {
	duration  *prometheus.HistogramVec
	success   *prometheus.CounterVec
	failure   *prometheus.CounterVec
	conflicts *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Duration of ledger operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operation_success",
		Help: "Successful ledger operations.",
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operation_failure",
		Help: "Failed ledger operations.",
	}, []string{"operation", "code"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operation_conflicts",
		Help: "Ledger operations that lost a concurrency race.",
	}, []string{"operation"})
	reg.MustRegister(duration, success, failure, conflicts)
	return &LedgerMetrics{
		duration:  duration,
		success:   success,
		failure:   failure,
		conflicts: conflicts,
	}
}

// ObserveDuration records the duration for the named operation.
func (m *LedgerMetrics) ObserveDuration(operation string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named operation.
func (m *LedgerMetrics) IncSuccess(operation string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncFailure increments the failure counter for the named operation and code.
func (m *LedgerMetrics) IncFailure(operation, code string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(operation), normalizeLabel(code)).Inc()
}

// IncConflict increments the conflict counter for the named operation.
func (m *LedgerMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// Track records the duration and outcome of a completed operation in one
// call, typically from a defer at the top of the operation.
func (m *LedgerMetrics) Track(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.ObserveDuration(operation, time.Since(start))
	if err == nil {
		m.IncSuccess(operation)
		return
	}
	code := string(pkgerrors.CodeStorage)
	if typed := pkgerrors.As(err); typed != nil {
		code = string(typed.Code())
		if typed.Code() == pkgerrors.CodeConflict {
			m.IncConflict(operation)
		}
	}
	m.IncFailure(operation, code)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

package metrics

import (
	"errors"
	"time"

	"archie-shopify-session-store/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation result labels
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultUnavailable = "unavailable"
	ResultError       = "error"
)

// StoreMetrics records session store operations. A nil *StoreMetrics is valid
// and records nothing.
type StoreMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewStoreMetrics creates the collectors and registers them with reg
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_store_operations_total",
			Help: "Session store operations by operation and result.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "session_store_operation_duration_seconds",
			Help:    "Latency of session store operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration)
	}
	return m
}

// Observe records one operation that started at start and ended with err
func (m *StoreMetrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, Result(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Result classifies err into a result label
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, domain.ErrSessionNotFound):
		return ResultNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		return ResultUnavailable
	default:
		return ResultError
	}
}

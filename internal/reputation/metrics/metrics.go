package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "ccms/pkg/domain-errors"
)

// Metrics provides observability for the reputation ledger.
// Tracks operation outcomes, latency and the registered user count.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	TotalUsers        prometheus.Gauge
}

// New creates the reputation metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ccms_reputation_operations_total",
			Help: "Reputation ledger operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ccms_reputation_operation_duration_seconds",
			Help:    "Duration of reputation ledger operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		TotalUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "ccms_reputation_total_users",
			Help: "Accounts ever registered with the reputation ledger",
		}),
	}
}

// ObserveOperation records one operation. The outcome label is "ok" or the
// domain error code.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetTotalUsers publishes the registry counter.
func (m *Metrics) SetTotalUsers(n uint64) {
	m.TotalUsers.Set(float64(n))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "ccms/pkg/domain-errors"
)

// Metrics provides observability for the staking ledger.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	TotalUsers        prometheus.Gauge
	TotalStaked       prometheus.Gauge
	StakedAmount      *prometheus.CounterVec
	// ReconcileDrift is escrow holding minus total staked at the last
	// reconciliation.
	ReconcileDrift prometheus.Gauge
}

// New creates the staking metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ccms_staking_operations_total",
			Help: "Staking ledger operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ccms_staking_operation_duration_seconds",
			Help:    "Duration of staking ledger operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		TotalUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "ccms_staking_total_users",
			Help: "Accounts ever registered with the staking ledger",
		}),
		TotalStaked: f.NewGauge(prometheus.GaugeOpts{
			Name: "ccms_staking_total_staked",
			Help: "Units of the staked asset held in escrow for stakers",
		}),
		StakedAmount: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ccms_staking_moved_units_total",
			Help: "Units moved into or out of escrow by direction",
		}, []string{"direction"}),
		ReconcileDrift: f.NewGauge(prometheus.GaugeOpts{
			Name: "ccms_staking_reconcile_drift_units",
			Help: "Escrow holding minus total staked at the last reconciliation",
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

func (m *Metrics) SetTotalUsers(n uint64) {
	m.TotalUsers.Set(float64(n))
}

func (m *Metrics) SetTotalStaked(n uint64) {
	m.TotalStaked.Set(float64(n))
}

// ObserveMovement adds amount to the "in" or "out" direction.
func (m *Metrics) ObserveMovement(direction string, amount uint64) {
	m.StakedAmount.WithLabelValues(direction).Add(float64(amount))
}

func (m *Metrics) SetReconcileDrift(holding, staked uint64) {
	m.ReconcileDrift.Set(float64(holding) - float64(staked))
}

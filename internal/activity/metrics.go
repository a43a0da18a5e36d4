package activity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeMalformed = "malformed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Metrics counts consumed activity events.
type Metrics struct {
	Events *prometheus.CounterVec
	Points *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ccms_activity_events_total",
			Help: "Activity events consumed by outcome",
		}, []string{"outcome"}),
		Points: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ccms_activity_points_total",
			Help: "Points applied to reputation by pillar",
		}, []string{"pillar"}),
	}
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observePoints(pillar string, points uint64) {
	if m == nil {
		return
	}
	m.Points.WithLabelValues(pillar).Add(float64(points))
}

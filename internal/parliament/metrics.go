package parliament

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/davidahmann/parliament/pkg/types"
)

// Metrics records evaluation outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	evaluations  *prometheus.CounterVec
	mindDuration *prometheus.HistogramVec
	failures     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parliament",
			Name:      "evaluations_total",
			Help:      "Completed evaluation passes by final direction and confidence.",
		}, []string{"direction", "confidence"}),
		mindDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parliament",
			Name:      "mind_duration_seconds",
			Help:      "Time spent inside a single mind.",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		}, []string{"mind"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parliament",
			Name:      "evaluation_failures_total",
			Help:      "Evaluation passes that failed, by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) observeMind(mind types.MindName, d time.Duration) {
	if m == nil {
		return
	}
	m.mindDuration.WithLabelValues(string(mind)).Observe(d.Seconds())
}

func (m *Metrics) observeAggregate(agg types.ParliamentAggregate) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(string(agg.Direction), string(agg.Confidence)).Inc()
}

func (m *Metrics) observeFailure(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}

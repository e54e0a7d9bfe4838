package purchase

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts saga outcomes. A nil *Metrics records nothing.
type Metrics struct {
	purchases     *prometheus.CounterVec
	compensations *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewMetrics registers the saga collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "purchase",
			Name:      "sagas_total",
			Help:      "Purchase sagas by final state and failure code.",
		}, []string{"state", "code"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "purchase",
			Name:      "compensations_total",
			Help:      "Compensation steps run, by step and result.",
		}, []string{"step", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "purchase",
			Name:      "saga_duration_seconds",
			Help:      "Wall time of a purchase saga.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.purchases, m.compensations, m.duration)
	}
	return m
}

func (m *Metrics) saga(state State, code Code, took time.Duration) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(string(state), string(code)).Inc()
	m.duration.WithLabelValues(string(state)).Observe(took.Seconds())
}

func (m *Metrics) compensation(step string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.compensations.WithLabelValues(step, result).Inc()
}

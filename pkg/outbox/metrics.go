package outbox

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts sweeper outcomes. A nil *Metrics records nothing.
type Metrics struct {
	processed *prometheus.CounterVec
	claimed   prometheus.Counter
}

// NewMetrics registers the outbox collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outbox",
			Name:      "intents_processed_total",
			Help:      "Outbox intents processed by kind and result.",
		}, []string{"kind", "result"}),
		claimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outbox",
			Name:      "intents_claimed_total",
			Help:      "Outbox intents claimed by sweepers.",
		}),
	}
	reg.MustRegister(m.processed, m.claimed)
	return m
}

func (m *Metrics) observe(kind, result string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) claim(n int) {
	if m == nil {
		return
	}
	m.claimed.Add(float64(n))
}

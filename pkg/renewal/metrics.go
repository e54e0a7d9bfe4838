package renewal

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts renewals. A nil *Metrics records nothing.
type Metrics struct {
	renewals *prometheus.CounterVec
	expired  prometheus.Counter
}

// NewMetrics registers the renewal collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "renewal",
			Name:      "attempts_total",
			Help:      "Renewal attempts by mode and result.",
		}, []string{"mode", "result"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "renewal",
			Name:      "expired_total",
			Help:      "Subscriptions marked expired after lapsing.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.renewals, m.expired)
	}
	return m
}

func (m *Metrics) attempt(mode Mode, result string) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(string(mode), result).Inc()
}

func (m *Metrics) lapsed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

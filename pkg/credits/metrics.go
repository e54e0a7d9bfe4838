package credits

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts ledger mutations. A nil *Metrics records nothing.
type Metrics struct {
	transactions *prometheus.CounterVec
	volume       *prometheus.CounterVec
	rejected     *prometheus.CounterVec
}

// NewMetrics registers the ledger collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credits",
			Name:      "transactions_total",
			Help:      "Ledger transactions written, by type.",
		}, []string{"type"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credits",
			Name:      "volume_cents_total",
			Help:      "Absolute amount moved, in minor units, by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credits",
			Name:      "rejected_total",
			Help:      "Mutations rejected without a write, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.transactions, m.volume, m.rejected)
	}
	return m
}

func (m *Metrics) written(tx *Transaction) {
	if m == nil || tx == nil {
		return
	}
	amount := tx.Amount
	if amount < 0 {
		amount = -amount
	}
	m.transactions.WithLabelValues(string(tx.Type)).Inc()
	m.volume.WithLabelValues(string(tx.Type)).Add(float64(amount))
}

func (m *Metrics) reject(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

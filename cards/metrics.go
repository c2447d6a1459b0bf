package cards

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus instruments. Instruments are
// registered on a caller-supplied registry so tests can use isolated
// registries.
type Metrics struct {
	transfersTotal     *prometheus.CounterVec
	transferMinorMoved prometheus.Counter
	cardsExpired       prometheus.Gauge
	cardsReissueDue    prometheus.Gauge
	sweepRunsTotal     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bankcards",
				Subsystem: "transfers",
				Name:      "total",
				Help:      "Transfers partitioned by result.",
			},
			[]string{"result"},
		),
		transferMinorMoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bankcards",
				Subsystem: "transfers",
				Name:      "amount_minor_total",
				Help:      "Total amount moved by completed transfers, in minor units.",
			},
		),
		cardsExpired: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bankcards",
				Subsystem: "sweep",
				Name:      "cards_expired",
				Help:      "Cards whose expiration date has passed, from the last sweep.",
			},
		),
		cardsReissueDue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bankcards",
				Subsystem: "sweep",
				Name:      "cards_reissue_due",
				Help:      "Cards inside the reissue window, from the last sweep.",
			},
		),
		sweepRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bankcards",
				Subsystem: "sweep",
				Name:      "runs_total",
				Help:      "Completed expiry sweep runs.",
			},
		),
	}
	reg.MustRegister(
		m.transfersTotal,
		m.transferMinorMoved,
		m.cardsExpired,
		m.cardsReissueDue,
		m.sweepRunsTotal,
	)
	return m
}

func (m *Metrics) TransferCompleted(amount int64) {
	m.transfersTotal.WithLabelValues("completed").Inc()
	m.transferMinorMoved.Add(float64(amount))
}

func (m *Metrics) TransferRejected(reason string) {
	m.transfersTotal.WithLabelValues("rejected_" + reason).Inc()
}

func (m *Metrics) SweepObserved(expired, reissueDue int) {
	m.cardsExpired.Set(float64(expired))
	m.cardsReissueDue.Set(float64(reissueDue))
	m.sweepRunsTotal.Inc()
}

package replica

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luca-patrignani/byzantine-bank/api"
)

const (
	opLabel     = "op"
	statusLabel = "status"

	// statusError labels requests that failed with a storage fault.
	statusError = "error"
)

type metrics struct {
	requests  *prometheus.CounterVec
	throttled *prometheus.CounterVec
	accounts  prometheus.GaugeFunc
}

func newMetrics(name string, accounts func() float64) *metrics {
	labels := prometheus.Labels{"replica": name}
	return &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "bank_requests_total",
				Help:        "requests served, by operation and status",
				ConstLabels: labels,
			},
			[]string{opLabel, statusLabel},
		),
		throttled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "bank_throttled_total",
				Help:        "requests that arrived sooner than the throttle interval",
				ConstLabels: labels,
			},
			[]string{opLabel},
		),
		accounts: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "bank_accounts",
				Help:        "number of open accounts",
				ConstLabels: labels,
			},
			accounts,
		),
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requests, m.throttled, m.accounts} {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "register replica metrics")
		}
	}
	return nil
}

func (m *metrics) observe(op string, status api.Status) {
	m.requests.WithLabelValues(op, string(status)).Inc()
}

func (m *metrics) fault(op string) {
	m.requests.WithLabelValues(op, statusError).Inc()
}

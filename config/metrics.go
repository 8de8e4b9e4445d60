package config

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "confsource"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// metrics records resolve outcomes for a Source. A nil *metrics is a no-op.
type metrics struct {
	resolves    *prometheus.CounterVec
	lastSuccess prometheus.Gauge
	keys        prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, name string) *metrics {
	if reg == nil {
		return nil
	}
	labels := prometheus.Labels{"source": name}

	m := &metrics{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "resolves_total",
			Help:        "Configuration resolves by strategy and outcome.",
			ConstLabels: labels,
		}, []string{"strategy", "outcome"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time of the last successful resolve.",
			ConstLabels: labels,
		}),
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "keys",
			Help:        "Number of flattened keys in the resolved view.",
			ConstLabels: labels,
		}),
	}

	m.resolves = register(reg, m.resolves)
	m.lastSuccess = register(reg, m.lastSuccess)
	m.keys = register(reg, m.keys)
	return m
}

// register registers c, reusing an identical collector that is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observe(s Strategy, keys int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.resolves.WithLabelValues(s.String(), outcomeFailure).Inc()
		return
	}
	m.resolves.WithLabelValues(s.String(), outcomeSuccess).Inc()
	m.lastSuccess.Set(float64(time.Now().Unix()))
	m.keys.Set(float64(keys))
}

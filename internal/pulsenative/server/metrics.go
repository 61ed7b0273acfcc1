package server

import "github.com/prometheus/client_golang/prometheus"

// metrics exposes supervisor-level counters via prometheus/client_golang,
// the same instrumentation library the wider example pack wires for
// service-level observability. The collectors are registered at
// construction only when a registry is given, so tests that build a Server
// without one never register them and cannot hit duplicate registration.
type metrics struct {
	acceptedTotal prometheus.Counter
	rejectedTotal prometheus.Counter
	activeConns   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		acceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_native_connections_accepted_total",
			Help: "Total connections accepted by the supervisor.",
		}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_native_connections_rejected_total",
			Help: "Total connections refused because the connection cap was reached.",
		}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_native_connections_active",
			Help: "Currently live connections.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.acceptedTotal, m.rejectedTotal, m.activeConns)
	}
	return m
}

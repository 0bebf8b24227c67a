package monitor

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the Prometheus collectors shared by all monitors of a process.
type Metrics struct {
	Samples      *prometheus.CounterVec
	Alerts       *prometheus.CounterVec
	SampleErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secureclaw",
			Subsystem: "monitor",
			Name:      "samples_total",
			Help:      "Completed sampling cycles per monitor.",
		}, []string{"monitor"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secureclaw",
			Subsystem: "monitor",
			Name:      "alerts_total",
			Help:      "Alerts raised per monitor and severity.",
		}, []string{"monitor", "severity"}),
		SampleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secureclaw",
			Subsystem: "monitor",
			Name:      "sample_errors_total",
			Help:      "Sampling cycles that failed per monitor.",
		}, []string{"monitor"}),
	}
	if reg != nil {
		reg.MustRegister(m.Samples, m.Alerts, m.SampleErrors)
	}
	return m
}

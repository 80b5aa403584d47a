// internal/handler/metrics.go
package handler

import (
	"github.com/colebrumley/radmon/internal/event"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the latest value of every channel as a Prometheus gauge
type Metrics struct {
	values   *prometheus.GaugeVec
	readings *prometheus.CounterVec
}

// NewMetrics creates the reading collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		values: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "radmon_channel_value",
				Help: "Latest value of each sensor channel",
			},
			[]string{"origin", "channel", "unit"},
		),
		readings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radmon_readings_total",
				Help: "Total number of readings handled per origin",
			},
			[]string{"origin"},
		),
	}
	reg.MustRegister(m.values, m.readings)
	return m
}

// Observe is the metrics handler action
func (m *Metrics) Observe(d *event.Datum) error {
	for name, v := range d.Channels() {
		m.values.WithLabelValues(d.Origin(), name, v.Unit).Set(v.Value)
	}
	m.readings.WithLabelValues(d.Origin()).Inc()
	return nil
}

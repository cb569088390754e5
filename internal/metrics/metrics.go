// Package metrics exposes labeling counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the labeling instruments on a private registry so tests and
// multiple instances do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	ImagesServed *prometheus.CounterVec
	LabelsSaved  prometheus.Counter
	Skips        prometheus.Counter
	Jumps        *prometheus.CounterVec
	Exhausted    *prometheus.CounterVec
	CursorIndex  prometheus.Gauge
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ImagesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocrlabel",
			Name:      "images_served_total",
			Help:      "Images handed out for labeling, by selector strategy.",
		}, []string{"selector"}),
		LabelsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ocrlabel",
			Name:      "labels_saved_total",
			Help:      "Labeled copies written.",
		}),
		Skips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ocrlabel",
			Name:      "skips_total",
			Help:      "Images skipped without a label.",
		}),
		Jumps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocrlabel",
			Name:      "jumps_total",
			Help:      "Jump requests, by result.",
		}, []string{"result"}),
		Exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocrlabel",
			Name:      "selection_exhausted_total",
			Help:      "Selections that found no image, by reason.",
		}, []string{"reason"}),
		CursorIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ocrlabel",
			Name:      "cursor_index",
			Help:      "Current file_index_to_read.",
		}),
	}
	m.registry.MustRegister(
		m.ImagesServed,
		m.LabelsSaved,
		m.Skips,
		m.Jumps,
		m.Exhausted,
		m.CursorIndex,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSSEClients exports count as the number of open event streams.
func (m *Metrics) ObserveSSEClients(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ocrlabel",
		Name:      "sse_clients",
		Help:      "Open labeling pages subscribed to events.",
	}, func() float64 { return float64(count()) }))
}

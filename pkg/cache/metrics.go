package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics of a cache Manager.
type Metrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
	Entries   prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "karfab", Subsystem: "cache", Name: "hits_total",
			Help: "Number of lookups served from memory.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "karfab", Subsystem: "cache", Name: "misses_total",
			Help: "Number of lookups which had to load objects from archives.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "karfab", Subsystem: "cache", Name: "evictions_total",
			Help: "Number of objects dropped from memory to keep the bound.",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "karfab", Subsystem: "cache", Name: "entries",
			Help: "Number of objects on memory.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Hits, m.Misses, m.Evictions, m.Entries}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// FallbackMetrics counts traffic that still reaches the legacy backend.
type FallbackMetrics struct {
	fallbackReads          *prometheus.CounterVec
	secondaryWriteFailures *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewFallbackMetrics creates and registers fallback metrics.
func NewFallbackMetrics(namespace string, registry prometheus.Registerer) (*FallbackMetrics, error) {
	m := &FallbackMetrics{
		fallbackReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_reads_total",
				Help:      "Blob operations served by the legacy account",
			},
			[]string{"container"},
		),
		secondaryWriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "secondary_entity_write_failures_total",
				Help:      "Entity creates that succeeded on the new table but failed on the legacy table",
			},
			[]string{"table"},
		),
	}
	m.collectors = []prometheus.Collector{m.fallbackReads, m.secondaryWriteFailures}

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Track records one fallback read.
func (m *FallbackMetrics) Track(containerName, blobName string) {
	m.fallbackReads.WithLabelValues(containerName).Inc()
}

// Tracker returns Track as a fallback tracker.
func (m *FallbackMetrics) Tracker() interfaces.FallbackTracker {
	return m.Track
}

// EntityErrorHandler counts secondary write failures of the named table.
func (m *FallbackMetrics) EntityErrorHandler(tableName string) interfaces.EntityErrorHandler {
	return func(error, interfaces.Entity) {
		m.secondaryWriteFailures.WithLabelValues(tableName).Inc()
	}
}

// Describe implements the Collector interface
func (m *FallbackMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *FallbackMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

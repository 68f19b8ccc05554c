package metrics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer owns the registry and serves it over HTTP.
type MetricsServer struct {
	registry *prometheus.Registry
	fallback *FallbackMetrics
	scan     *ScanMetrics
	srv      *http.Server
}

// New creates the registry and collectors, prefixing metric names with namespace.
// An empty addr creates a server that only records.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}

	fallbackMetrics, err := NewFallbackMetrics(namespace, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback metrics: %w", err)
	}

	scanMetrics, err := NewScanMetrics(namespace, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan metrics: %w", err)
	}

	m := &MetricsServer{
		registry: registry,
		fallback: fallbackMetrics,
		scan:     scanMetrics,
	}
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		m.srv = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return m, nil
}

func (m *MetricsServer) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsServer) Fallback() *FallbackMetrics {
	return m.fallback
}

func (m *MetricsServer) Scan() *ScanMetrics {
	return m.scan
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsServer) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// ListenAndServe blocks until the server is shut down. It returns nil right away when no
// address was configured.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}

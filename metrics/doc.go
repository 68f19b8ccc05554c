// Package metrics exposes Prometheus counters for fallback usage and migration scans.
//
// All collectors are registered in a private registry served by MetricsServer on /metrics.
package metrics

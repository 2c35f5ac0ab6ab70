package config

import "github.com/marmos91/dittofs/pkg/metrics"

// MetricsResult is returned by InitializeMetrics and carries the metrics
// HTTP server, if metrics collection is enabled.
type MetricsResult struct {
	// Server is nil when cfg.Metrics.Enabled is false. Callers hand it to
	// runtime.Runtime.SetMetricsServer only when non-nil.
	Server *metrics.Server
}

// InitializeMetrics turns on the process-wide Prometheus registry and
// starts an HTTP server for it when cfg.Metrics.Enabled is true. Every
// pkg/metrics.NewXMetrics constructor checks the same registry, so this
// must run before any component that records metrics is constructed.
func InitializeMetrics(cfg *Config) MetricsResult {
	if !cfg.Metrics.Enabled {
		return MetricsResult{}
	}

	metrics.InitRegistry()
	return MetricsResult{Server: metrics.NewServer(cfg.Metrics.Port)}
}

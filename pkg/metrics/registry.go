package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection for the process and creates the
// Prometheus registry every NewXMetrics constructor registers collectors
// against. Call once at startup before constructing any *Metrics value;
// every constructor returns nil until this has run.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	enabled = true
	registry = prometheus.NewRegistry()
	return registry
}

// IsEnabled returns whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the process registry. Callers must not call this
// before InitRegistry; every constructor in this package guards on
// IsEnabled first and never reaches GetRegistry otherwise.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

var registry *prometheus.Registry

// InitRegistry enables metrics collection, constructing a fresh
// Prometheus registry. Concrete metrics implementations (see
// pkg/metrics/prometheus) return nil/no-op until this has been called.
func InitRegistry() *prometheus.Registry {
	registry = prometheus.NewRegistry()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return registry != nil
}

// GetRegistry returns the active registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

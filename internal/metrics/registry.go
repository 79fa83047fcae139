package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Default is the default metrics instance
	Default  *Metrics
	registry *prometheus.Registry
	once     sync.Once
)

// InitDefault initializes the default metrics instance on a private
// registry. It should be called once at application startup.
func InitDefault() *Metrics {
	once.Do(func() {
		registry, Default = NewRegistry()
	})
	return Default
}

// GetDefault returns the default metrics instance
// If not initialized, it will initialize it first
func GetDefault() *Metrics {
	if Default == nil {
		return InitDefault()
	}
	return Default
}

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, for node_exporter's textfile collector. The file is
// replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// WriteDefault writes the default registry to path.
func WriteDefault(path string) error {
	InitDefault()
	return WriteTextfile(path, registry)
}

// Reset clears the default metrics instance (useful for testing)
func Reset() {
	Default = nil
	registry = nil
	once = sync.Once{}
}

// Package settings reads process-wide defaults from REPROBOX_* environment
// variables. Command-line flags override every value read here.
package settings

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Settings holds environment-derived defaults.
type Settings struct {
	LogLevel  string `env:"REPROBOX_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"REPROBOX_LOG_FORMAT" envDefault:"text"`

	// MetricsFile, when set, receives a Prometheus textfile after each command.
	MetricsFile string `env:"REPROBOX_METRICS_FILE"`

	// StaticShell is installed into roots that lack /bin/sh or /usr/bin/env.
	StaticShell string `env:"REPROBOX_STATIC_SHELL"`

	RegistryInsecure bool `env:"REPROBOX_REGISTRY_INSECURE" envDefault:"false"`
}

// Load parses the environment into a Settings value.
func Load() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML file and parses it into a Config, applying defaults for
// unset fields and validating the backend urls.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "round_robin"
	}
	if cfg.HealthCheck.Interval <= 0 {
		cfg.HealthCheck.Interval = 5
	}
	if cfg.HealthCheck.Timeout <= 0 {
		cfg.HealthCheck.Timeout = 2
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "INFO"
	}

	for _, b := range cfg.Backends {
		if _, err := url.Parse(b.URL); err != nil || b.URL == "" {
			return nil, fmt.Errorf("invalid backend url %q", b.URL)
		}
	}

	return cfg, nil
}

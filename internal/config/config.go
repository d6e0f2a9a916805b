package config

// Config represents the load balancer configuration.
type Config struct {
	Port           int               `yaml:"port"`            // Proxy listener port
	MetricsPort    int               `yaml:"metrics_port"`    // Metrics listener port
	MetricsEnabled bool              `yaml:"metrics_enabled"` // Enable the metrics listener
	Strategy       string            `yaml:"strategy"`        // Initial scheduling algorithm
	Backends       []BackendConfig   `yaml:"backends"`        // Initial pool membership
	HealthCheck    HealthCheckConfig `yaml:"health_check"`    // Health check parameters
	Log            LogConfig         `yaml:"log"`             // Logging parameters
}

// BackendConfig is a single backend entry.
type BackendConfig struct {
	URL    string `yaml:"url"`
	Weight int    `yaml:"weight,omitempty"`
}

// HealthCheckConfig defines the probe loop parameters.
type HealthCheckConfig struct {
	Interval float64 `yaml:"interval"` // Seconds between sweeps
	Timeout  float64 `yaml:"timeout"`  // Total per-probe timeout in seconds
}

// LogConfig defines logging parameters.
type LogConfig struct {
	Level string `yaml:"level"` // DEBUG, INFO, WARNING, ERROR
	File  string `yaml:"file"`  // Optional log file path
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Port:           8080,
		MetricsPort:    9090,
		MetricsEnabled: true,
		Strategy:       "round_robin",
		HealthCheck: HealthCheckConfig{
			Interval: 5,
			Timeout:  2,
		},
		Log: LogConfig{Level: "INFO"},
	}
}

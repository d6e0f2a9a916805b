package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Nash0810/minibalance/internal/balancer"
	"github.com/Nash0810/minibalance/internal/config"
	"github.com/Nash0810/minibalance/internal/logging"
	"github.com/Nash0810/minibalance/internal/metrics"
	"github.com/Nash0810/minibalance/internal/pool"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to YAML config file")
		port          = flag.Int("port", 8080, "Proxy listener port")
		metricsPort   = flag.Int("metrics-port", 9090, "Metrics listener port")
		enableMetrics = flag.Bool("enable-metrics", true, "Enable the metrics listener")
		logLevel      = flag.String("log-level", "INFO", "Log level: DEBUG, INFO, WARNING, ERROR")
		logFile       = flag.String("log-file", "", "Optional log file path")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	// Explicitly set flags win over file values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "metrics-port":
			cfg.MetricsPort = *metricsPort
		case "enable-metrics":
			cfg.MetricsEnabled = *enableMetrics
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-file":
			cfg.Log.File = *logFile
		}
	})

	logger, err := logging.New("minibalance", logging.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	var registry *metrics.Registry
	if cfg.MetricsEnabled {
		registry = metrics.NewRegistry()
	}

	p := pool.New(pool.Options{
		HealthCheckInterval: time.Duration(cfg.HealthCheck.Interval * float64(time.Second)),
		HealthCheckTimeout:  time.Duration(cfg.HealthCheck.Timeout * float64(time.Second)),
		Metrics:             registry,
		Logger:              logger,
	})
	applyConfig(p, cfg, logger)

	p.StartHealthChecks()
	p.StartStatsCleanup()
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, logger, func(newCfg *config.Config) error {
			applyConfig(p, newCfg, logger)
			return nil
		})
		if err != nil {
			logger.Error("config_watcher_failed", "error", err.Error())
		} else {
			go watcher.Start(ctx)
		}
	}

	proxy := balancer.NewProxy(p, registry, logger)
	control := balancer.NewControl(p, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: balancer.Handler(proxy, control),
	}

	var metricsServer *http.Server
	if registry != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", registry.Handler())
		mux.Handle("/metrics/json", registry.Handler())
		mux.Handle("/metrics/runtime", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler: mux,
		}
		go func() {
			logger.Info("metrics_server_starting", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics_server_error", "error", err.Error())
			}
		}()
	}

	go func() {
		logger.Info("server_starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server_error", "error", err.Error())
			log.Fatal(err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown_signal_received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_error", "error", err.Error())
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics_shutdown_error", "error", err.Error())
		}
	}

	logger.Info("shutdown_complete")
}

// applyConfig reconciles pool membership and strategy with the config:
// listed backends are added or updated, vanished ones removed.
func applyConfig(p *pool.Pool, cfg *config.Config, logger *logging.Logger) {
	desired := make(map[string]bool, len(cfg.Backends))
	for _, b := range cfg.Backends {
		desired[b.URL] = true
		p.Add(b.URL, b.Weight)
		logger.Info("backend_configured", "url", b.URL, "weight", b.Weight)
	}
	for url := range p.Show() {
		if !desired[url] {
			p.Remove(url)
			logger.Info("backend_dropped", "url", url)
		}
	}

	if err := p.SetScheduler(cfg.Strategy); err != nil {
		logger.Warn("unknown_strategy_keeping_current", "strategy", cfg.Strategy)
	}
}

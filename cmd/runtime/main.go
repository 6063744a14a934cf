package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/config"
	"github.com/docpulse/runtime-node/internal/metrics"
	"github.com/docpulse/runtime-node/internal/server"
	"github.com/docpulse/runtime-node/internal/service"
	"github.com/docpulse/runtime-node/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("node_id", cfg.Node.NodeID),
		zap.String("data_dir", cfg.Node.DataDir),
		zap.String("store", cfg.Store.BaseURL))

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

	// Metrics registry with process and Go runtime collectors
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	executor := store.NewHTTPExecutor(cfg.Store.BaseURL, cfg.Store.RequestTimeout, logger.Named("store"))

	rt, err := service.NewRuntime(cfg, executor, m, logger)
	if err != nil {
		logger.Fatal("Failed to initialize runtime", zap.Error(err))
	}

	// Gossip health summaries between runtime nodes if enabled
	var gossipSvc *service.GossipService
	if cfg.Gossip.Enabled {
		gossipSvc, err = service.NewGossipService(cfg.Gossip, cfg.Node.NodeID, rt.Health, logger.Named("gossip"))
		if err != nil {
			logger.Error("Failed to initialize gossip service", zap.Error(err))
		} else {
			defer gossipSvc.Shutdown()
			logger.Info("Gossip service initialized", zap.Int("bind_port", cfg.Gossip.BindPort))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt.Start(ctx)
	defer rt.Stop()

	var httpSrv *server.Server
	if cfg.Metrics.Enabled {
		httpSrv = server.New(server.Config{
			Port:        cfg.Metrics.Port,
			MetricsPath: cfg.Metrics.Path,
		}, rt, gossipSvc, registry, logger.Named("http"))
		httpSrv.Start()
	}

	logger.Info("Runtime node started", zap.String("node_id", cfg.Node.NodeID))

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	cancel()

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to stop http server", zap.Error(err))
		}
	}
}

// initLogger initializes the zap logger from the logging config
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

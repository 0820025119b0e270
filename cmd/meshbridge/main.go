// Package main implements the meshbridge gateway daemon. It attaches every
// configured radio through protocol detection, bridges messages between them,
// and publishes live events to NATS and websocket consumers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/config"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/engine"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/feed/natsfeed"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/feed/wsfeed"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/health"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/natsclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "meshbridge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Gateway failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting meshbridge gateway",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid",
			"radios", len(cfg.Radios), "routes", len(cfg.Routes))
		return nil
	}

	return runGateway(cfg, logger, cliCfg.ShutdownTimeout)
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runGateway(cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	metricsRegistry := metric.NewMetricsRegistry()
	healthMonitor := health.NewMonitor(appName)
	metricsServer := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, metricsRegistry)
	metricsServer.SetHealthHandler(healthMonitor.Handler())
	go func() {
		if err := metricsServer.Start(); err != nil {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	defer func() {
		if err := metricsServer.Stop(); err != nil {
			slog.Warn("Metrics server stop failed", "error", err)
		}
	}()

	natsFeed, closeNATS, err := setupNATSFeed(cfg, logger, metricsRegistry.Metrics)
	if err != nil {
		return err
	}
	defer closeNATS()

	wsFeed, err := setupWSFeed(cfg, logger, metricsRegistry)
	if err != nil {
		return err
	}
	if wsFeed != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := wsFeed.Stop(ctx); err != nil {
				slog.Warn("Websocket feed stop failed", "error", err)
			}
		}()
	}

	registry, err := engine.NewRegistry(metricsRegistry)
	if err != nil {
		return fmt.Errorf("build protocol registry: %w", err)
	}

	eng, err := engine.New(engine.Deps{
		Config:   config.NewSafeConfig(cfg),
		Registry: registry,
		Logger:   logger,
		Metrics:  metricsRegistry.Metrics,
		NATSFeed: natsFeed,
		WSFeed:   wsFeed,
		Health:   healthMonitor,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	slog.Info("Gateway starting", "radios", len(cfg.Radios), "routes", len(cfg.Routes))
	if err := eng.Run(signalCtx); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	slog.Info("Gateway shutdown complete")
	return nil
}

// setupNATSFeed connects the NATS client when URLs are configured. The feed
// is optional: without URLs a disabled publisher and a no-op closer come
// back. A NATS server that is down at startup is not fatal either, the
// client keeps reconnecting in the background.
func setupNATSFeed(cfg *config.Config, logger *slog.Logger, metrics *metric.Metrics) (*natsfeed.Publisher, func(), error) {
	if !cfg.NATS.Enabled() {
		slog.Info("NATS feed disabled, no URLs configured")
		return natsfeed.New(nil, logger), func() {}, nil
	}

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(metrics),
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(strings.Join(cfg.NATS.URLs, ","), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}
	if err := client.Connect(); err != nil {
		slog.Warn("NATS unavailable at startup, reconnecting in background", "error", err)
	}

	closer := func() {
		if err := client.Close(); err != nil {
			slog.Warn("NATS close failed", "error", err)
		}
	}
	return natsfeed.New(client, logger), closer, nil
}

// setupWSFeed starts the websocket hub when an address is configured.
func setupWSFeed(cfg *config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) (*wsfeed.Hub, error) {
	if cfg.Feed.WebSocketAddr == "" {
		slog.Info("Websocket feed disabled, no address configured")
		return nil, nil
	}

	hub := wsfeed.NewHub(cfg.Feed.WebSocketAddr, wsfeed.Options{
		Logger:   logger,
		Registry: registry,
	})
	if err := hub.Start(); err != nil {
		return nil, fmt.Errorf("start websocket feed: %w", err)
	}
	return hub, nil
}

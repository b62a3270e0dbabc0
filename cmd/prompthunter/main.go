// Command prompthunter serves Prompt Hunter play sessions over
// HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"digital.vasic.prompthunter/pkg/aiscore"
	"digital.vasic.prompthunter/pkg/api"
	"digital.vasic.prompthunter/pkg/config"
	"digital.vasic.prompthunter/pkg/content"
	"digital.vasic.prompthunter/pkg/env"
	"digital.vasic.prompthunter/pkg/logging"
	"digital.vasic.prompthunter/pkg/metrics"
	"digital.vasic.prompthunter/pkg/monitor"
	"digital.vasic.prompthunter/pkg/rotation"
	"digital.vasic.prompthunter/pkg/sandbox"
	"digital.vasic.prompthunter/pkg/session"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	envPath := flag.String("env", ".env", "Path to .env file, skipped when missing")
	flag.Parse()

	if err := run(*configPath, *envPath); err != nil {
		fmt.Fprintf(os.Stderr, "prompthunter: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	loader := env.NewLoader()
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := loader.Load(envPath); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
		}
	}

	cfg, err := config.Load(configPath, loader)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	bank := content.NewBank()
	if err := bank.Load(cfg.Content.PackPath); err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	for _, pack := range bank.Packs() {
		for _, issue := range content.Check(pack) {
			logger.Warn("content issue", logging.StringField("issue", issue.Error()))
		}
	}
	logger.Info("content loaded",
		logging.IntField("roles", bank.Count()),
		logging.IntField("files", len(bank.Sources())),
		logging.StringField("path", cfg.Content.PackPath),
	)

	pm := metrics.NewPrometheusMetrics()
	collector := monitor.NewEventCollector(monitor.DefaultCapacity)

	executor := sandbox.NewJSExecutor(
		sandbox.WithTimeout(cfg.Sandbox.Timeout),
		sandbox.WithLogger(logger),
		sandbox.WithMetrics(pm),
	)
	logger.Debug("sandbox ready", logging.DurationField("timeout", executor.Timeout()))

	mgr := session.NewManager(bank,
		session.WithGenerator(aiscore.NewGeminiGenerator(cfg.AI.Model, cfg.AI.Temperature)),
		session.WithClientOptions(
			aiscore.WithMinInterval(cfg.AI.MinRequestInterval),
			aiscore.WithRetry(cfg.AI.MaxRetries, cfg.AI.RetryBase, cfg.AI.RetryCap, cfg.AI.RetryJitter),
			aiscore.WithModelName(cfg.AI.Model),
		),
		session.WithRotationOptions(
			rotation.WithPremadeCap(cfg.Rotation.PremadeCap),
			rotation.WithBatchSize(cfg.Rotation.BatchSize),
		),
		session.WithSandbox(executor),
		session.WithDefaultAPIKey(cfg.AI.APIKey),
		session.WithLogger(logger),
		session.WithMetrics(pm),
		session.WithEvents(collector),
	)

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithRegistry(pm.Registry()),
		api.WithRequestTimeout(cfg.Server.WriteTimeout),
	}
	var hub *monitor.Hub
	if cfg.Monitor.Enabled {
		hub = monitor.NewHub(monitor.BuildDashboardData(collector), logger)
		hub.Attach(collector)
		opts = append(opts, api.WithMonitor(hub, collector))
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(mgr, bank, opts...).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweep(ctx, mgr, hub, cfg.Server, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", logging.StringField("addr", cfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if hub != nil {
		hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// buildLogger writes to stdout and, when configured, a log file.
// The configured API key and anything shaped like one is masked.
func buildLogger(cfg config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{"service": "prompthunter"}

	stdout, err := logging.NewZapLogger(logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Fields: fields,
	})
	if err != nil {
		return nil, err
	}

	var out logging.Logger = stdout
	if cfg.Log.File != "" {
		file, err := logging.NewZapLogger(logging.LoggerConfig{
			Level:      level,
			Format:     "json",
			OutputPath: cfg.Log.File,
			Fields:     fields,
		})
		if err != nil {
			_ = stdout.Close()
			return nil, err
		}
		out = logging.NewMultiLogger(stdout, file)
	}
	return logging.NewRedactingLogger(out, cfg.AI.APIKey), nil
}

// sweep ends idle sessions until ctx is done.
func sweep(ctx context.Context, mgr *session.Manager, hub *monitor.Hub, cfg config.ServerConfig, logger logging.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mgr.Sweep(cfg.SessionIdleTTL); n > 0 {
				logger.Info("idle sessions ended", logging.IntField("count", n))
			}
			if hub != nil {
				hub.Dashboard().Forget(time.Now().Add(-cfg.SessionIdleTTL))
			}
		}
	}
}

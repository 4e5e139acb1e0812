package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"merkledrop/config"
	"merkledrop/core/events"
	"merkledrop/core/state"
	"merkledrop/native/distributor"
	"merkledrop/observability"
	"merkledrop/observability/logging"
	telemetry "merkledrop/observability/otel"
	"merkledrop/services/claimindex"
	"merkledrop/services/distributord"
	"merkledrop/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "./config.toml", "path to the distributord TOML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions("distributord", cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer func() { _ = logCloser.Close() }()

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = "distributord"
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()
	mgr := state.NewManager(db)

	emitters := events.MultiEmitter{observability.Events()}
	var index *claimindex.Index
	if cfg.Index.Enabled {
		indexDB, err := claimindex.Open(cfg.Index.Driver, cfg.Index.DSN)
		if err != nil {
			return fmt.Errorf("open claim index: %w", err)
		}
		index = claimindex.New(indexDB, logger)
		emitters = append(emitters, index)
	}

	engine := distributor.NewEngine(mgr)
	engine.SetEmitter(emitters)

	server := distributord.New(distributord.Config{
		Engine:  engine,
		Catalog: mgr,
		Index:   index,
		Logger:  logger,
		RateLimit: distributord.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		},
		MaxClockSkew: time.Duration(cfg.Auth.MaxClockSkewSeconds) * time.Second,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(server.Handler(), "distributord"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("distributord listening", slog.String("address", cfg.ListenAddress), slog.Bool("index", index != nil))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		logger.Info("distributord stopped")
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

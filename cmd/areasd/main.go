package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/INLOpen/areas/config"
	"github.com/INLOpen/areas/engine"
	"github.com/INLOpen/areas/hooks"
	"github.com/INLOpen/areas/hooks/listeners"
	"github.com/INLOpen/areas/indexer"
	"github.com/INLOpen/areas/kv"
	"github.com/INLOpen/areas/recorder"
	"github.com/INLOpen/areas/server"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// createLogger creates a slog.Logger based on the provided configuration.
func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// initTracerProvider sets up an OTLP exporter when tracing is enabled.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		logger.Info("Distributed tracing is disabled.")
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	logger.Info("Initializing distributed tracing...", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error

	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exporter, err = otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	case "grpc":
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	default:
		return nil, nil, fmt.Errorf("unsupported tracing protocol: %q", cfg.Protocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("areas")))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	cleanup := func() {
		logger.Info("Shutting down tracer provider...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}

	return tp, cleanup, nil
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (kv.Store, error) {
	return kv.Open(kv.Options{
		Backend:      cfg.Backend,
		Path:         cfg.Path,
		Compression:  cfg.Compression,
		SyncOnWrite:  cfg.SyncOnWrite,
		MaxBytes:     cfg.MaxBytes,
		LockTimeout:  config.ParseDuration(cfg.LockTimeout, 5*time.Second, logger),
		StaleLockTTL: config.ParseDuration(cfg.StaleLockTTL, 10*time.Minute, logger),
		Logger:       logger,
	})
}

func main() {
	configPath := flag.String("config", "areas.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := createLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to create logger", "error", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	tp, tracerCleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logger.Error("Failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}
	defer tracerCleanup()

	store, err := openStore(cfg.Store, logger)
	if err != nil {
		logger.Error("Failed to open property store", "backend", cfg.Store.Backend, "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	logger.Info("Property store opened", "backend", cfg.Store.Backend, "path", cfg.Store.Path, "max_bytes", cfg.Store.MaxBytes)

	hookManager := hooks.NewHookManager(logger)
	listeners.NewAuditLogger(logger).Register(hookManager)

	dbEngine, err := engine.NewStorageEngine(engine.StorageEngineOptions{
		Store:          store,
		Logger:         logger,
		HookManager:    hookManager,
		TracerProvider: tp,
		Metrics:        engine.NewEngineMetrics(cfg.Debug.MetricsEnabled, "areas_"),
	})
	if err != nil {
		logger.Error("Failed to create storage engine", "error", err)
		store.Close()
		os.Exit(1)
	}

	names := indexer.NewPlayerNameIndex(store, indexer.PlayerNameIndexOptions{
		CacheSize:   cfg.Store.NameCacheSize,
		Logger:      logger,
		CacheHits:   expvar.NewInt("areas_name_cache_hits"),
		CacheMisses: expvar.NewInt("areas_name_cache_misses"),
	})

	rec, err := recorder.New(recorder.Options{
		Engine:      dbEngine,
		Names:       names,
		Logger:      logger,
		SettleDelay: config.ParseDuration(cfg.Recorder.SettleDelay, 5*time.Second, logger),
	})
	if err != nil {
		logger.Error("Failed to create recorder", "error", err)
		store.Close()
		os.Exit(1)
	}

	appServer, err := server.NewAppServer(dbEngine, rec, cfg, logger)
	if err != nil {
		logger.Error("Failed to create application server", "error", err)
		store.Close()
		os.Exit(1)
	}
	// Corruption alerts go out to every connected game host.
	hookManager.Register(hooks.EventOnCorruption, listeners.NewCorruptionAlerter(logger, appServer.Ingest()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- appServer.Start()
	}()
	logger.Info("Application running. Press Ctrl+C to exit.", "address", appServer.Addr().String())

	select {
	case err := <-serverErrChan:
		logger.Error("Server exited with an error", "error", err)
	case <-quit:
		logger.Info("Shutdown signal received. Stopping server...")
		appServer.Stop()
		<-serverErrChan
	}

	// Server first, then pending hooks, then the store so the last flush lands.
	hookManager.Stop()
	if pending := rec.Pending(); pending > 0 {
		logger.Warn("Unsettled breaks left as recorded at shutdown.", "count", pending)
	}
	if err := store.Close(); err != nil {
		logger.Error("Failed to close property store", "error", err)
	}
	logger.Info("Application exited gracefully.")
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"runtime"
	"time"

	"github.com/INLOpen/areas/config"
	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/engine"
	"github.com/INLOpen/areas/kv"
	"github.com/INLOpen/areas/recorder"
	"golang.org/x/sync/errgroup"
)

// AppServer manages the ingest endpoint, the debug server and the
// background maintenance loop.
type AppServer struct {
	ingestLis     net.Listener
	httpServer    *HTTPServer
	ingest        *IngestServer
	metricsServer *MetricsServer
	collector     *SystemCollector
	pool          *WorkerPool
	cfg           *config.Config
	logger        *slog.Logger
	engine        *engine.StorageEngine
	recorder      *recorder.Recorder
	tickInterval  time.Duration
	flushInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewAppServer creates and initializes a new application server. It binds
// the ingest listener right away so the address is known before Start.
func NewAppServer(eng *engine.StorageEngine, rec *recorder.Recorder, cfg *config.Config, logger *slog.Logger) (*AppServer, error) {
	pool := NewWorkerPool(runtime.NumCPU(), 1024, logger.With("pool", "ingest"))

	ingest, err := NewIngestServer(IngestServerOptions{
		Recorder:        rec,
		Engine:          eng,
		Pool:            pool,
		Logger:          logger,
		ReadTimeout:     config.ParseDuration(cfg.Server.ReadTimeout, defaultReadTimeout, logger),
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest server: %w", err)
	}

	lis, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Server.ListenAddress, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	appSrv := &AppServer{
		ctx:           ctx,
		cancel:        cancel,
		ingestLis:     lis,
		httpServer:    NewHTTPServer(ingest, 0, logger),
		ingest:        ingest,
		pool:          pool,
		cfg:           cfg,
		logger:        logger.With("component", "AppServer"),
		engine:        eng,
		recorder:      rec,
		tickInterval:  config.ParseDuration(cfg.Recorder.TickInterval, time.Second, logger),
		flushInterval: config.ParseDuration(cfg.Store.FlushInterval, 5*time.Second, logger),
	}

	if cfg.Debug.Enabled {
		appSrv.metricsServer = NewMetricsServer(&cfg.Debug, logger)
		diskPath := ""
		if cfg.Store.Backend != kv.BackendMemory {
			diskPath = filepath.Dir(cfg.Store.Path)
		}
		appSrv.collector = NewSystemCollector(SystemCollectorOptions{
			DiskPath: diskPath,
			Interval: config.ParseDuration(cfg.Debug.SystemInterval, 15*time.Second, logger),
			Store:    eng.Store(),
			Publish:  true,
			Logger:   logger,
		})
	}
	return appSrv, nil
}

// Ingest is the websocket server; it is also the alert broadcaster.
func (s *AppServer) Ingest() *IngestServer { return s.ingest }

// Addr is the bound ingest address.
func (s *AppServer) Addr() net.Addr { return s.ingestLis.Addr() }

// Start runs all configured servers in parallel. It blocks until all servers stop.
func (s *AppServer) Start() error {
	g, appCtx := errgroup.WithContext(s.ctx)

	s.pool.Start()

	g.Go(func() error {
		go func() {
			<-appCtx.Done()
			s.logger.Info("Context cancelled, stopping ingest server...")
			s.httpServer.Stop()
		}()
		return s.httpServer.Start(s.ingestLis)
	})

	if s.metricsServer != nil {
		g.Go(func() error {
			go func() {
				<-appCtx.Done()
				s.logger.Info("Context cancelled, stopping Metrics server...")
				s.metricsServer.Stop()
			}()
			return s.metricsServer.Start()
		})
	}
	if s.collector != nil {
		s.collector.Start()
	}

	g.Go(func() error {
		s.maintenanceLoop(appCtx)
		return nil
	})

	s.logger.Info("Application server started. Waiting for servers to exit.")
	err := g.Wait()

	if s.collector != nil {
		s.collector.Stop()
	}
	s.logger.Info("Stopping worker pool...")
	s.pool.Stop()

	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("A server has failed, initiating shutdown.", "error", err)
		return fmt.Errorf("server group failed: %w", err)
	}
	s.logger.Info("All servers have stopped gracefully.")
	return nil
}

// maintenanceLoop confirms breaks whose settle message never arrived and
// persists buffered stores. It runs until ctx is cancelled, then flushes
// one last time.
func (s *AppServer) maintenanceLoop(ctx context.Context) {
	tick := time.NewTicker(s.tickInterval)
	defer tick.Stop()
	flush := time.NewTicker(s.flushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case <-tick.C:
			n, err := s.recorder.Tick(ctx, unseen)
			if err != nil {
				s.logger.Error("Failed to settle overdue breaks", "error", err)
			} else if n > 0 {
				s.logger.Debug("Confirmed overdue breaks", "count", n)
			}
		case <-flush.C:
			s.flush()
		}
	}
}

// unseen is the lookup for a server that cannot see the world: overdue
// breaks keep their records.
func unseen(core.Location) (core.BlockSnapshot, bool) { return core.BlockSnapshot{}, false }

func (s *AppServer) flush() {
	if f, ok := s.engine.Store().(kv.Flusher); ok {
		if err := f.Flush(); err != nil {
			s.logger.Error("Failed to flush property store", "error", err)
		}
	}
}

// Stop gracefully shuts down all servers. It may be called before Start.
func (s *AppServer) Stop() {
	s.cancel()
}

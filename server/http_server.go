package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// IngestPath is where game hosts open their websocket.
const IngestPath = "/v1/ingest"

// HTTPServer serves the ingest websocket and a health probe.
type HTTPServer struct {
	server  *http.Server
	ingest  *IngestServer
	logger  *slog.Logger
	started bool
	mu      sync.Mutex
}

// NewHTTPServer wires the ingest handler into a mux.
func NewHTTPServer(ingest *IngestServer, readHeaderTimeout time.Duration, logger *slog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	logger = logger.With("component", "HTTPServer")

	mux.HandleFunc(IngestPath, ingest.Handler())
	mux.HandleFunc("/healthz", handleHealth(ingest))

	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	return &HTTPServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		ingest: ingest,
		logger: logger,
	}
}

func handleHealth(ingest *IngestServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": ingest.Sessions(),
		})
	}
}

// Start serves on lis. It's a blocking call.
func (s *HTTPServer) Start(lis net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("Ingest server listening", "address", lis.Addr().String(), "path", IngestPath)
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Ingest server failed", "error", err)
		return fmt.Errorf("failed to serve ingest: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server and hangs up websocket sessions.
func (s *HTTPServer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("Stopping ingest server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Ingest server shutdown failed", "error", err)
	}
	s.ingest.Close()
	s.logger.Info("Ingest server stopped.")
}

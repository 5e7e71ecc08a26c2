package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/malbeclabs/sensorlake/internal/ingest"
	"github.com/malbeclabs/sensorlake/internal/server/metrics"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ServiceName = "sensorlake"

	HealthPath  = "/health"
	HealthzPath = "/healthz"
	ReadyzPath  = "/readyz"
	MCPPath     = "/mcp"
)

type Server struct {
	log *slog.Logger
	cfg Config
	mcp *mcp.Server

	handler http.Handler

	httpSrv      *http.Server
	shutdownOnce sync.Once
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "Sensorlake MCP Server",
			Version: cfg.Version,
		}, &mcp.ServerOptions{
			Instructions: serverInstructions,
		}),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	webhook, err := ingest.NewHandler(ingest.Config{
		Logger:        cfg.Logger,
		Store:         cfg.Store,
		WebhookSecret: cfg.WebhookSecret,
		MaxBodySize:   cfg.MaxBodySize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook handler: %w", err)
	}

	mcpHandler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{
		Stateless: true,
	})

	mux := http.NewServeMux()
	mux.Handle(ingest.WebhookPath, s.metricsMiddleware(ingest.WebhookPath, webhook))
	mux.Handle(HealthPath, s.metricsMiddleware(HealthPath, http.HandlerFunc(s.healthHandler)))
	mux.Handle(HealthzPath, s.metricsMiddleware(HealthzPath, http.HandlerFunc(s.healthzHandler)))
	mux.Handle(ReadyzPath, s.metricsMiddleware(ReadyzPath, http.HandlerFunc(s.readyzHandler)))
	mux.Handle(MCPPath, s.metricsMiddleware(MCPPath, mcpHandler))
	s.handler = mux

	return s, nil
}

// Handler is the full HTTP surface: webhook, health probes and the MCP endpoint.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCP exposes the tool server for in-process transports.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve blocks until ctx is done or the listener fails, then drains in-flight requests
// for up to ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.log.Info("server: listening",
		"listenAddr", listener.Addr().String(),
		"webhookAuth", s.cfg.WebhookSecret != "",
	)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		select {
		case <-done:
			// Serve already returned.
			return
		default:
		}
		s.log.Info("server: stopping", "reason", ctx.Err())
		s.shutdown()
	}()

	err := s.httpSrv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) shutdown() {
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				s.log.Error("server: shutdown failed", "error", err)
			}
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func allowGetHead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeJSON(w, http.StatusMethodNotAllowed, ingest.ErrorResponse{Error: "method not allowed", Code: http.StatusMethodNotAllowed})
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGetHead(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
	})
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGetHead(w, r) {
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write healthz response", "error", err)
	}
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGetHead(w, r) {
		return
	}
	if err := s.cfg.Store.Ping(r.Context()); err != nil {
		s.log.Debug("readyz: store not ready", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("store not ready\n")); err != nil {
			s.log.Error("failed to write readyz response", "error", err)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write readyz response", "error", err)
	}
}

func (s *Server) metricsMiddleware(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streamed MCP responses working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

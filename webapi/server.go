package webapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/eosc-synergy/sqaaas/internal/pipeline"
	"github.com/eosc-synergy/sqaaas/logger"
)

// ServerOpts provides a way to configure a Server.
type ServerOpts func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(l logger.Logger) ServerOpts {
	return func(s *Server) {
		s.logger = l
	}
}

// WithAddr sets the listen address for the server.
func WithAddr(addr string) ServerOpts {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithOrchestrator sets the pipeline orchestrator backing the API.
func WithOrchestrator(o *pipeline.Orchestrator) ServerOpts {
	return func(s *Server) {
		s.pipelines = o
	}
}

// Server is the SQAaaS API server.
type Server struct {
	addr      string
	logger    logger.Logger
	pipelines *pipeline.Orchestrator

	httpSvr *http.Server
	ln      net.Listener
}

// NewServer creates an API server. It does not listen until Start is called.
func NewServer(opts ...ServerOpts) (*Server, error) {
	s := &Server{}
	for _, o := range opts {
		o(s)
	}

	if s.logger == nil {
		return nil, errors.New("logger is required")
	}
	if s.addr == "" {
		return nil, errors.New("listen address is required")
	}
	if s.pipelines == nil {
		return nil, errors.New("orchestrator is required")
	}

	s.httpSvr = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start starts serving in a goroutine, returning an error if the listener
// can't be opened.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.httpSvr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped: %v", err)
		}
	}()

	s.logger.Notice("API server listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound listen address, useful when the configured one had
// port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts the server down, blocking until all requests have
// been served or the grace period has expired.
func (s *Server) Stop() error {
	// Shutdown signal with grace period of 10 seconds
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpSvr.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("API server shutdown timed out, server shutdown forced")
		}
		return fmt.Errorf("shutting down API server: %w", err)
	}

	s.logger.Notice("API server shut down")
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/forgehq/forge/pkg/logging"
	"github.com/forgehq/forge/pkg/metrics"
)

// Options configures a Server, grounded on teacher's Options-struct
// construction idiom (pkg/server/server.go's Options{Config, Host, Port}),
// narrowed from hector's multi-transport (gRPC+REST+WebUI) surface down to
// the loopback-only HTTP ingress of §6.2.
type Options struct {
	Engine  *Engine
	Metrics *metrics.Registry
	// Host defaults to 127.0.0.1 — the server MUST NOT bind beyond loopback.
	Host string
	Port int
}

// Server owns the lifecycle of the loopback HTTP listener.
type Server struct {
	opts   Options
	http   *http.Server
	log    *slog.Logger
	doneCh chan struct{}
}

// New constructs a Server. It does not bind a listener yet; call Start.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("server: Engine is required")
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	return &Server{
		opts:   opts,
		log:    logging.Get().With("component", "server"),
		doneCh: make(chan struct{}),
	}, nil
}

// Start binds the loopback listener and begins serving in the background.
// It returns once the listener is bound, not once the server has stopped —
// callers needing to block should call Wait.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: failed to bind %s: %w", addr, err)
	}

	s.http = &http.Server{Handler: newRouter(s.opts.Engine, s.opts.Metrics)}
	s.log.Info("server listening", "addr", ln.Addr().String())

	go func() {
		defer close(s.doneCh)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server stopped unexpectedly", "error", err)
		}
	}()
	return nil
}

// Wait blocks until the server has stopped serving.
func (s *Server) Wait() { <-s.doneCh }

// Stop gracefully shuts the server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

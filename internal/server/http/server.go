package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/syncdrive/internal/logging"
	"github.com/dmitrijs2005/syncdrive/internal/server/config"
)

// Server wraps the HTTP listener with graceful shutdown.
type Server struct {
	srv *http.Server
	log logging.Logger
}

// NewServer constructs the listener around the router.
func NewServer(cfg *config.Config, h *SyncHandler, log logging.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.EndpointAddr,
			Handler:           NewRouter(cfg, h, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info(context.Background(), "http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

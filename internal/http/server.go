// Package http expone el coordinator por REST/JSON. Los handlers son finos:
// parsean, delegan al service, mapean errores de dominio a status codes.
package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/covenant/internal/observability/logger"
)

// Server envuelve http.Server con timeouts sanos y shutdown ordenado.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: logger.Named("http"),
	}
}

// ListenAndServe bloquea hasta que el listener falle o Shutdown lo cierre.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	return s.srv.Shutdown(ctx)
}

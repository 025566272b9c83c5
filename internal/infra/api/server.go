// File: internal/infra/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/config"
	"linkedin-autopilot/internal/infra/api/apiv1"
)

// Server is the process's HTTP front: the ops API, health and metrics.
type Server struct {
	http *http.Server
	log  *zerolog.Logger
}

func NewServer(cfg config.APIConfig, v1 *apiv1.Server, logger *zerolog.Logger) *Server {
	sLog := logger.With().Str("component", "HTTPServer").Logger()

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(
			TraceID(&sLog),
			RequestLog(&sLog),
			Recover(&sLog),
			Timeout(15*time.Second),
			BearerAuth(cfg.JWTSecret),
		)
		v1.Register(r)
	})

	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: &sLog,
	}
}

func (s *Server) Run() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/moonmind/moonmind/pkg/config"
	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/log"
)

// Drain window for in-flight requests on shutdown. Long-polls are bounded
// at 60s, so a shorter grace cuts them off; they reconnect.
const shutdownGrace = 15 * time.Second

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Server owns the HTTP front: engine assembly, middleware chain, and the
// graceful-shutdown lifecycle.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer assembles the middleware chain and mounts all routes.
func NewServer(cfg *config.Config, h *Handler) *Server {
	logger := log.WithComponent("api")
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           newEngine(h, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func newEngine(h *Handler, logger zerolog.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(recovery(logger), requestLogger(logger), observeRequests())
	registerRoutes(engine, h)
	return engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

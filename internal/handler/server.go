package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Server is the local status API.
type Server struct {
	logger *zap.Logger
	cfg    config.HTTPConfig
	echo   *echo.Echo
}

// NewServer registers the routes of h. poll is how often websocket clients are checked for a new tick.
func NewServer(logger *zap.Logger, cfg config.HTTPConfig, h *MonitorHandler, poll time.Duration) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Skipper:    func(echo.Context) bool { return cfg.Token == "" },
		KeyLookup:  "header:" + echo.HeaderAuthorization + ",query:token",
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Token)) == 1, nil
		},
	}))

	api := e.Group("/api")
	api.GET("/state", h.GetState)
	api.GET("/history", h.GetHistory)
	api.GET("/status", h.GetStatus)
	api.POST("/pause", h.Pause)
	api.POST("/resume", h.Resume)
	api.GET("/processes/tree", h.GetTree)
	api.POST("/processes/:pid/kill", h.Kill)
	api.GET("/ws", h.Stream(poll))

	return &Server{logger: logger, cfg: cfg, echo: e}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status api listening", zap.String("addr", s.cfg.Listen))
		if err := s.echo.Start(s.cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("status api shutdown", zap.Error(err))
		return err
	}
	s.logger.Info("status api stopped")
	return nil
}

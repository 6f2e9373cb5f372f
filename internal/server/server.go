// Package server exposes the webhook listener and operational HTTP
// endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Angleito/BluefinAIAgentTrader/internal/config"
	"github.com/Angleito/BluefinAIAgentTrader/internal/trading"
)

// Server wraps the Echo HTTP server hosting the webhook endpoint.
type Server struct {
	echo   *echo.Echo
	cfg    config.ServerConfig
	logger zerolog.Logger
}

// New creates the HTTP server and registers all routes.
func New(cfg config.ServerConfig, pipeline *trading.Pipeline, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogging(logger))

	handler := &WebhookHandler{
		pipeline: pipeline,
		secret:   cfg.WebhookSecret,
		logger:   logger,
	}

	e.POST("/webhook", handler.HandleWebhook)
	e.GET("/health", handler.HandleHealth)
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	return &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger,
	}
}

// Start starts the HTTP server in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)

	go func() {
		s.logger.Info().Str("addr", addr).Msg("Webhook server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Webhook server failed")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info().Msg("Webhook server stopped")
	return nil
}

// Echo returns the underlying Echo instance. Used in tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// requestLogging logs each request with method, path, status and
// latency.
func requestLogging(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("Request handled")
			return err
		}
	}
}

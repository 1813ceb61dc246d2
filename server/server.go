// Package server hosts the HTTP surface: the chat endpoints, the
// Prometheus scrape route, and a health probe.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gradmall/mallchat/ai/metrics"
	"github.com/gradmall/mallchat/ai/session"
	"github.com/gradmall/mallchat/ai/workflow"
	"github.com/gradmall/mallchat/internal/profile"
	apiv1 "github.com/gradmall/mallchat/server/router/api/v1"
)

// Server wraps the echo instance and its collaborators.
type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
	cleanup    *session.CleanupJob
}

// NewServer assembles the echo instance and registers all routes.
func NewServer(instanceProfile *profile.Profile, engine *workflow.Engine, store session.Store, exporter *metrics.PrometheusExporter) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("HTTP request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		Profile:    instanceProfile,
		echoServer: e,
		cleanup:    session.NewCleanupJob(store, session.CleanupConfig{}),
	}

	apiService := apiv1.NewAPIV1Service(instanceProfile, engine)
	apiService.Register(e)

	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": instanceProfile.Version,
		})
	})

	return s, nil
}

// Start launches the HTTP listener and the session cleanup job.
// It returns once the listener is up; errors from the listener are logged.
func (s *Server) Start(ctx context.Context) error {
	go s.cleanup.Start(ctx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "error", err)
		}
	}()
	slog.Info("Server started", "address", address, "mode", s.Profile.Mode)
	return nil
}

// Shutdown drains in-flight requests with a bounded grace period.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down server gracefully", "error", err)
	}
	slog.Info("Server shut down")
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}

// Package httpcontroller exposes the mirroring engine over HTTP: page
// views for images and albums, raw byte serving, a JSON API and the
// operational endpoints.
package httpcontroller

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sweepies/imgur-sans-bullshit/internal/conf"
	"github.com/sweepies/imgur-sans-bullshit/internal/hosts"
	"github.com/sweepies/imgur-sans-bullshit/internal/ingest"
	"github.com/sweepies/imgur-sans-bullshit/internal/logging"
	"github.com/sweepies/imgur-sans-bullshit/internal/observability"
	"github.com/sweepies/imgur-sans-bullshit/internal/ratelimit"
)

// Server encapsulates the Echo server and its collaborators.
type Server struct {
	Echo     *echo.Echo
	Settings *conf.Settings
	Registry *hosts.Registry
	Ingest   *ingest.Service
	Limiter  *ratelimit.Limiter
	Metrics  *observability.Metrics

	logger *slog.Logger
}

// New initializes the HTTP server and registers all routes.
func New(settings *conf.Settings, registry *hosts.Registry, ingestSvc *ingest.Service, limiter *ratelimit.Limiter, m *observability.Metrics) *Server {
	s := &Server{
		Echo:     echo.New(),
		Settings: settings,
		Registry: registry,
		Ingest:   ingestSvc,
		Limiter:  limiter,
		Metrics:  m,
		logger:   logging.ForService("httpcontroller"),
	}

	s.Echo.HideBanner = true
	s.Echo.IPExtractor = echo.ExtractIPFromXFFHeader()
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(s.requestLogger())

	s.initRoutes()
	return s
}

// Start begins listening on the configured port. Blocks until the server
// stops.
func (s *Server) Start() error {
	addr := ":" + s.Settings.WebServer.Port
	s.logger.Info("starting HTTP server", "addr", addr)
	return s.Echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

// requestLogger emits one structured log line per request.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"remote_ip", c.RealIP(),
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
				s.logger.Warn("request", attrs...)
			} else {
				s.logger.Info("request", attrs...)
			}
			return nil
		},
	})
}

func (s *Server) initRoutes() {
	e := s.Echo

	e.GET("/", s.handleHome)
	e.GET("/health", s.handleHealth)
	if s.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	e.GET("/view", s.handleView, s.rateLimitMiddleware("view"))
	e.GET("/gallery/:id", s.handleGalleryRedirect, s.rateLimitMiddleware("gallery"))
	e.GET("/a/:id", s.handleAlbumPage, s.rateLimitMiddleware("album"))
	e.GET("/raw/*", s.handleRaw, s.rateLimitMiddleware("raw"))
	e.GET("/api/image/*", s.handleAPIImage, s.rateLimitMiddleware("api:image"))
	e.GET("/api/album/*", s.handleAPIAlbum, s.rateLimitMiddleware("api:album"))
	e.GET("/:id", s.handleImagePage, s.rateLimitMiddleware("page"))
}

// Package api exposes the HTTP surface of the realtime service: device
// membership, live state, thresholds, rollups, the notification feed, the
// advisory endpoint and the HTTP telemetry fallback.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pondpal/pondpal-go/internal/conf"
	"github.com/pondpal/pondpal-go/internal/datastore"
	"github.com/pondpal/pondpal-go/internal/devstate"
	"github.com/pondpal/pondpal-go/internal/errors"
	"github.com/pondpal/pondpal-go/internal/ingest"
	"github.com/pondpal/pondpal-go/internal/logging"
	"github.com/pondpal/pondpal-go/internal/notification"
	"github.com/pondpal/pondpal-go/internal/observability"
	"github.com/pondpal/pondpal-go/internal/registry"
	"github.com/pondpal/pondpal-go/internal/rollup"
	"github.com/pondpal/pondpal-go/internal/threshold"
)

// Server is the HTTP API server.
type Server struct {
	Echo *echo.Echo

	settings      conf.WebServerSettings
	ds            datastore.Interface
	registry      *registry.Service
	tracker       *devstate.Tracker
	thresholds    *threshold.Engine
	rollups       *rollup.Aggregator
	notifications *notification.Engine
	pipeline      *ingest.Pipeline
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewServer wires the HTTP routes onto the services.
func NewServer(
	settings conf.WebServerSettings,
	ds datastore.Interface,
	reg *registry.Service,
	tracker *devstate.Tracker,
	thresholds *threshold.Engine,
	rollups *rollup.Aggregator,
	notifications *notification.Engine,
	pipeline *ingest.Pipeline,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		Echo:          echo.New(),
		settings:      settings,
		ds:            ds,
		registry:      reg,
		tracker:       tracker,
		thresholds:    thresholds,
		rollups:       rollups,
		notifications: notifications,
		pipeline:      pipeline,
		metrics:       metrics,
		logger:        logging.ForService("api"),
	}

	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(s.requestLogger())

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.Echo.Group("/api/v1")

	v1.GET("/users/:userID/devices", s.listDevices)
	v1.POST("/users/:userID/devices", s.addDevice)
	v1.DELETE("/users/:userID/devices/:deviceID", s.removeDevice)
	v1.GET("/users/:userID/feed", s.getFeed)

	v1.GET("/devices/:deviceID/state", s.getLiveState)
	v1.GET("/devices/:deviceID/thresholds", s.getThresholds)
	v1.PUT("/devices/:deviceID/thresholds", s.setThresholds)
	v1.GET("/devices/:deviceID/rollup", s.getRollup)
	v1.GET("/devices/:deviceID/advisory", s.getAdvisory)
	v1.POST("/devices/:deviceID/samples", s.postSample)

	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	s.Echo.GET("/healthz", s.healthz)
}

// Start runs the server until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("HTTP API listening", "addr", s.settings.Listen)
	return s.Echo.Start(s.settings.Listen)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if !s.settings.Debug && v.Error == nil {
				return nil
			}
			s.logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"error", v.Error,
			)
			return nil
		},
	})
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// fail maps the error taxonomy onto HTTP statuses.
func fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsConflict(err):
		status = http.StatusConflict
	case errors.IsTransient(err):
		status = http.StatusServiceUnavailable
	}

	resp := errorResponse{Error: err.Error()}
	var ae *errors.AppError
	if errors.As(err, &ae) {
		resp.Field = ae.Field()
	}
	return c.JSON(status, resp)
}

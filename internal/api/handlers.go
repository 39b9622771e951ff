package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pondpal/pondpal-go/internal/advisory"
	"github.com/pondpal/pondpal-go/internal/devstate"
	"github.com/pondpal/pondpal-go/internal/errors"
	"github.com/pondpal/pondpal-go/internal/ingest"
	"github.com/pondpal/pondpal-go/internal/notification"
	"github.com/pondpal/pondpal-go/internal/rollup"
	"github.com/pondpal/pondpal-go/internal/sensor"
	"github.com/pondpal/pondpal-go/internal/threshold"
)

const dateLayout = "2006-01-02"

func (s *Server) listDevices(c echo.Context) error {
	devices, err := s.registry.ListDevices(c.Request().Context(), c.Param("userID"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"devices": devices})
}

type addDeviceRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Email      string `json:"email"`
}

func (s *Server) addDevice(c echo.Context) error {
	var req addDeviceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	attached, err := s.registry.AddDevice(c.Request().Context(),
		c.Param("userID"), req.Email, req.DeviceID, req.DeviceName)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, attached)
}

func (s *Server) removeDevice(c echo.Context) error {
	err := s.registry.RemoveDevice(c.Request().Context(), c.Param("userID"), c.Param("deviceID"))
	if err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// getFeed returns the merged notification feed of the user's devices. A
// transient membership read degrades to an empty feed with a warning
// instead of failing the dashboard.
func (s *Server) getFeed(c echo.Context) error {
	filter, ok := notification.ParseFilter(c.QueryParam("filter"))
	if !ok {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error: "filter must be one of all, warning, critical, info",
			Field: "filter",
		})
	}

	devices, err := s.registry.ListDevices(c.Request().Context(), c.Param("userID"))
	if err != nil {
		if errors.IsTransient(err) {
			s.logger.Warn("membership unavailable, serving empty feed", "error", err)
			return c.JSON(http.StatusOK, map[string]any{
				"notifications": []notification.Notification{},
				"warning":       "device list temporarily unavailable",
			})
		}
		return fail(c, err)
	}

	only := c.QueryParam("device")
	deviceIDs := make([]string, 0, len(devices))
	for _, d := range devices {
		if only != "" && d.DevID != only {
			continue
		}
		deviceIDs = append(deviceIDs, d.DevID)
	}

	if s.metrics != nil {
		s.metrics.FeedRequests.Inc()
	}
	feed := s.notifications.Feed(deviceIDs, filter)
	return c.JSON(http.StatusOK, map[string]any{"notifications": feed})
}

// liveStateResponse is the dashboard's device card payload.
type liveStateResponse struct {
	DeviceID   string        `json:"deviceId"`
	Sensors    sensor.Values `json:"sensors"`
	LastUpdate int64         `json:"lastUpdateTimestamp"`
	IsOnline   bool          `json:"isOnline"`
	IsWarning  bool          `json:"isWarning"`
}

func (s *Server) getLiveState(c echo.Context) error {
	deviceID := c.Param("deviceID")

	state, ok := s.tracker.Get(deviceID)
	if !ok {
		device, err := s.ds.GetDevice(deviceID)
		if err != nil {
			return fail(c, err)
		}
		state = s.tracker.Backfill(deviceID, device.LastSeenAt)
	}

	return c.JSON(http.StatusOK, liveStateResponse{
		DeviceID:   deviceID,
		Sensors:    state.Values,
		LastUpdate: state.LastUpdate,
		IsOnline:   state.Online,
		IsWarning:  s.isWarning(c, deviceID, state),
	})
}

// isWarning reports whether any reading sits outside its enabled bounds.
func (s *Server) isWarning(c echo.Context, deviceID string, state devstate.LiveState) bool {
	cfg, err := s.thresholds.Get(c.Request().Context(), deviceID)
	if err != nil || !cfg.IsEnabled {
		return false
	}
	for _, kind := range sensor.Kinds() {
		value, ok := state.Values.Float(kind)
		if !ok {
			continue
		}
		r := cfg.Range(kind)
		if value < r.Min || value > r.Max {
			return true
		}
	}
	return false
}

func (s *Server) getThresholds(c echo.Context) error {
	cfg, err := s.thresholds.Get(c.Request().Context(), c.Param("deviceID"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) setThresholds(c echo.Context) error {
	var cfg threshold.Config
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	err := s.thresholds.Set(c.Request().Context(), c.Param("deviceID"), cfg, c.QueryParam("user"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// getRollup serves the chart series. A transient store failure degrades to
// an empty series with a warning so the dashboard shows "no data" instead
// of an error page.
func (s *Server) getRollup(c echo.Context) error {
	period, err := rollup.ParsePeriod(defaultString(c.QueryParam("period"), string(rollup.PeriodDaily)))
	if err != nil {
		return fail(c, err)
	}

	refDate := time.Now()
	if d := c.QueryParam("date"); d != "" {
		refDate, err = time.Parse(dateLayout, d)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{
				Error: "date must be YYYY-MM-DD",
				Field: "date",
			})
		}
	}

	start := time.Now()
	points, err := s.rollups.Aggregate(c.Request().Context(), c.Param("deviceID"), period, refDate)
	if s.metrics != nil {
		s.metrics.RollupDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if errors.IsTransient(err) {
			s.logger.Warn("rollup degraded to empty series", "error", err)
			return c.JSON(http.StatusOK, map[string]any{
				"points":  []rollup.Point{},
				"warning": "telemetry store temporarily unavailable",
			})
		}
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"points":   points,
		"averages": rollup.Averages(points),
	})
}

func (s *Server) getAdvisory(c echo.Context) error {
	deviceID := c.Param("deviceID")

	cfg, err := s.thresholds.Get(c.Request().Context(), deviceID)
	if err != nil {
		return fail(c, err)
	}

	values := s.currentValues(c, deviceID)
	assessment := advisory.Advise(values.ToSnapshot(), &cfg)
	return c.JSON(http.StatusOK, assessment)
}

// currentValues prefers the live tracker state and falls back to the
// newest stored sample of the current date after a restart.
func (s *Server) currentValues(c echo.Context, deviceID string) sensor.Values {
	if state, ok := s.tracker.Get(deviceID); ok && len(state.Values) > 0 {
		return state.Values
	}

	samples, err := s.ds.GetSamples(c.Request().Context(), deviceID, time.Now().Format(dateLayout))
	if err != nil || len(samples) == 0 {
		return sensor.Values{}
	}
	return samples[len(samples)-1].Values()
}

// postSample is the HTTP telemetry fallback for hardware without MQTT.
func (s *Server) postSample(c echo.Context) error {
	var doc map[string]any
	if err := c.Bind(&doc); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	reading, err := ingest.ParseDocument(c.Param("deviceID"), doc)
	if err != nil {
		return fail(c, err)
	}
	if err := s.pipeline.Ingest(c.Request().Context(), "http", reading); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

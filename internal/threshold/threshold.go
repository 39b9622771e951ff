// Package threshold manages per-device sensor alert thresholds and
// classifies readings against them. Classification is two-tier (warning,
// critical); the four-tier advisory severity lives in the advisory package.
package threshold

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pondpal/pondpal-go/internal/datastore"
	"github.com/pondpal/pondpal-go/internal/errors"
	"github.com/pondpal/pondpal-go/internal/events"
	"github.com/pondpal/pondpal-go/internal/logging"
	"github.com/pondpal/pondpal-go/internal/sensor"
)

// Level is the outcome of classifying one reading.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Range bounds one sensor's acceptable values.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Config is a device's full threshold configuration. Depth is the water
// level probe depth in meters; PowerSaving is device firmware configuration
// carried opaquely.
type Config struct {
	IsEnabled   bool    `json:"isEnabled"`
	PH          Range   `json:"ph"`
	Temp        Range   `json:"temp"`
	TDS         Range   `json:"tds"`
	Turb        Range   `json:"turb"`
	Wlvl        Range   `json:"watlvl"`
	Depth       float64 `json:"depth"`
	PowerSaving bool    `json:"powerSaving"`
}

// Range returns the configured bounds for one sensor kind.
func (c *Config) Range(k sensor.Kind) Range {
	switch k {
	case sensor.KindPH:
		return c.PH
	case sensor.KindTemp:
		return c.Temp
	case sensor.KindTDS:
		return c.TDS
	case sensor.KindTurb:
		return c.Turb
	case sensor.KindWaterLevel:
		return c.Wlvl
	}
	return Range{}
}

// Default returns the threshold placeholders shown for a device that has
// never been configured. Alerting stays disabled until the user saves.
func Default() Config {
	return Config{
		IsEnabled: false,
		PH:        Range{Min: 6.5, Max: 8.5},
		Temp:      Range{Min: 20, Max: 30},
		TDS:       Range{Min: 150, Max: 500},
		Turb:      Range{Min: 30, Max: 100},
		Wlvl:      Range{Min: 70, Max: 100},
		Depth:     1.0,
	}
}

// criticalOffset is the distance beyond [min,max] at which a reading stops
// being a warning and becomes critical.
var criticalOffset = map[sensor.Kind]float64{
	sensor.KindPH:         1.0,
	sensor.KindTemp:       3,
	sensor.KindTDS:        50,
	sensor.KindTurb:       10,
	sensor.KindWaterLevel: 15,
}

// Classify grades a reading against [min,max]. Within range is normal,
// outside by less than the sensor's critical offset is a warning, outside by
// at least the offset is critical. Severity never decreases with distance.
func Classify(kind sensor.Kind, value, minVal, maxVal float64) Level {
	var distance float64
	switch {
	case value < minVal:
		distance = minVal - value
	case value > maxVal:
		distance = value - maxVal
	default:
		return LevelNormal
	}

	if distance >= criticalOffset[kind] {
		return LevelCritical
	}
	return LevelWarning
}

// Engine provides threshold CRUD with validation and classifies incoming
// readings, publishing alert events for out-of-range values.
type Engine struct {
	ds     datastore.Interface
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a threshold engine. The bus may be nil, e.g. for the
// one-shot advisory command; events are then skipped.
func NewEngine(ds datastore.Interface, bus *events.Bus) *Engine {
	return &Engine{
		ds:     ds,
		bus:    bus,
		logger: logging.ForService("threshold"),
		now:    time.Now,
	}
}

// Get returns a device's thresholds, or the defaults if the device is
// registered but has never been configured.
func (e *Engine) Get(ctx context.Context, deviceID string) (Config, error) {
	exists, err := e.ds.DeviceExists(deviceID)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, errors.Newf("device %q not found", deviceID).
			Component("threshold").
			Category(errors.CategoryNotFound).
			Context("device_id", deviceID).
			Build()
	}

	stored, err := e.ds.GetThreshold(deviceID)
	if err != nil {
		if errors.IsNotFound(err) {
			return Default(), nil
		}
		return Config{}, err
	}
	return fromRecord(stored), nil
}

// Set validates and persists a device's thresholds, then publishes a
// settings-change event. Invalid configs are rejected with the offending
// field named, never clamped.
func (e *Engine) Set(ctx context.Context, deviceID string, cfg Config, actor string) error {
	exists, err := e.ds.DeviceExists(deviceID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Newf("device %q not found", deviceID).
			Component("threshold").
			Category(errors.CategoryNotFound).
			Context("device_id", deviceID).
			Build()
	}

	if err := Validate(&cfg); err != nil {
		return err
	}

	record := toRecord(deviceID, &cfg)
	record.UpdatedAt = e.now()
	if err := e.ds.SaveThreshold(record); err != nil {
		return err
	}

	if e.bus != nil {
		e.bus.TryPublish(&events.SettingsEvent{
			DeviceID:  deviceID,
			Action:    "thresholds-updated",
			Actor:     actor,
			Detail:    "Alert thresholds updated",
			Timestamp: e.now().UnixMilli(),
		})
	}
	return nil
}

// Evaluate classifies every reported reading of a sample against the
// device's thresholds and publishes an alert event for each warning or
// critical result. Disabled thresholds suppress classification entirely.
// The returned map carries the outcome per classified sensor, normal
// included.
func (e *Engine) Evaluate(ctx context.Context, deviceID string, values sensor.Values, ts int64) map[sensor.Kind]Level {
	cfg, err := e.Get(ctx, deviceID)
	if err != nil {
		e.logger.Warn("skipping classification, thresholds unavailable",
			"device_id", deviceID,
			"error", err,
		)
		return nil
	}
	if !cfg.IsEnabled {
		return nil
	}

	levels := make(map[sensor.Kind]Level, len(values))
	for _, kind := range sensor.Kinds() {
		value, ok := values.Float(kind)
		if !ok {
			continue
		}
		r := cfg.Range(kind)
		level := Classify(kind, value, r.Min, r.Max)
		levels[kind] = level
		if level == LevelNormal {
			continue
		}

		if e.bus != nil {
			e.bus.TryPublish(&events.ReadingEvent{
				DeviceID:  deviceID,
				Sensor:    kind,
				Value:     value,
				Min:       r.Min,
				Max:       r.Max,
				Level:     string(level),
				Timestamp: ts,
			})
		}
	}
	return levels
}

// Validate checks a config against the persistence rules: min <= max for
// every sensor, all bounds at least 1, and depth at least 0.5. Bounds are
// only enforced when alerting is enabled; depth is checked regardless since
// the device firmware consumes it either way.
func Validate(cfg *Config) error {
	if cfg.Depth < 0.5 {
		return validationErr("watlvl.depth", "must be at least 0.5")
	}
	if !cfg.IsEnabled {
		return nil
	}

	for _, kind := range sensor.Kinds() {
		r := cfg.Range(kind)
		field := string(kind)
		if r.Min < 1 {
			return validationErr(field+".min", "must be at least 1")
		}
		if r.Min > r.Max {
			return validationErr(field+".min", fmt.Sprintf("must not exceed %s.max", field))
		}
	}
	return nil
}

func validationErr(field, reason string) error {
	return errors.Newf("threshold %s %s", field, reason).
		Component("threshold").
		Category(errors.CategoryValidation).
		Field(field).
		Build()
}

func fromRecord(t *datastore.DeviceThreshold) Config {
	return Config{
		IsEnabled:   t.Enabled,
		PH:          Range{Min: t.PHMin, Max: t.PHMax},
		Temp:        Range{Min: t.TempMin, Max: t.TempMax},
		TDS:         Range{Min: t.TDSMin, Max: t.TDSMax},
		Turb:        Range{Min: t.TurbMin, Max: t.TurbMax},
		Wlvl:        Range{Min: t.WlvlMin, Max: t.WlvlMax},
		Depth:       t.Depth,
		PowerSaving: t.PowerSaving,
	}
}

func toRecord(deviceID string, cfg *Config) *datastore.DeviceThreshold {
	return &datastore.DeviceThreshold{
		DeviceID:    deviceID,
		Enabled:     cfg.IsEnabled,
		PHMin:       cfg.PH.Min,
		PHMax:       cfg.PH.Max,
		TempMin:     cfg.Temp.Min,
		TempMax:     cfg.Temp.Max,
		TDSMin:      cfg.TDS.Min,
		TDSMax:      cfg.TDS.Max,
		TurbMin:     cfg.Turb.Min,
		TurbMax:     cfg.Turb.Max,
		WlvlMin:     cfg.Wlvl.Min,
		WlvlMax:     cfg.Wlvl.Max,
		Depth:       cfg.Depth,
		PowerSaving: cfg.PowerSaving,
	}
}

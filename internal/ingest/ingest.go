// Package ingest is the shared write path for telemetry: it persists the
// sample, refreshes the device's live state and hands changed readings to
// the threshold engine. Both the MQTT client and the HTTP fallback feed it.
package ingest

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/pondpal/pondpal-go/internal/datastore"
	"github.com/pondpal/pondpal-go/internal/devstate"
	"github.com/pondpal/pondpal-go/internal/errors"
	"github.com/pondpal/pondpal-go/internal/logging"
	"github.com/pondpal/pondpal-go/internal/observability"
	"github.com/pondpal/pondpal-go/internal/sensor"
	"github.com/pondpal/pondpal-go/internal/threshold"
)

// Reading is one raw telemetry submission from a device.
type Reading struct {
	DeviceID  string
	Values    sensor.Values
	Timestamp int64 // epoch millis, 0 means time of arrival
}

// Pipeline wires the telemetry write path together.
type Pipeline struct {
	ds         datastore.Interface
	tracker    *devstate.Tracker
	thresholds *threshold.Engine
	metrics    *observability.Metrics
	logger     *slog.Logger
	now        func() time.Time

	// AutoRegister makes unknown devices register on first contact. Both
	// ingest transports are hardware-facing, so the serve command enables
	// it; dashboard-side paths never create devices.
	AutoRegister bool
}

// NewPipeline creates a telemetry pipeline. Metrics may be nil.
func NewPipeline(ds datastore.Interface, tracker *devstate.Tracker, thresholds *threshold.Engine, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		ds:         ds,
		tracker:    tracker,
		thresholds: thresholds,
		metrics:    metrics,
		logger:     logging.ForService("ingest"),
		now:        time.Now,
	}
}

// Ingest validates and processes one reading. The sample is persisted
// first; a failed write propagates and leaves live state untouched. The
// source label only feeds metrics.
func (p *Pipeline) Ingest(ctx context.Context, source string, r Reading) error {
	if err := p.validate(r); err != nil {
		p.countError(source)
		return err
	}

	ts := r.Timestamp
	if ts == 0 {
		ts = p.now().UnixMilli()
	}

	if p.AutoRegister {
		if err := p.ds.RegisterDevice(r.DeviceID); err != nil {
			p.countError(source)
			return err
		}
	}

	at := time.UnixMilli(ts)
	s := &datastore.Sample{
		DeviceID: r.DeviceID,
		Date:     at.Format("2006-01-02"),
		TimeKey:  at.Format("15:04"),
	}
	s.SetValues(r.Values)

	if err := p.ds.AppendSample(ctx, s); err != nil {
		p.countError(source)
		return err
	}
	if err := p.ds.TouchDevice(r.DeviceID, ts); err != nil {
		p.logger.Warn("heartbeat persist failed", "device_id", r.DeviceID, "error", err)
	}

	_, changed := p.tracker.Apply(r.DeviceID, r.Values, ts)
	if len(changed) > 0 {
		levels := p.thresholds.Evaluate(ctx, r.DeviceID, changed, ts)
		if p.metrics != nil {
			for _, level := range levels {
				p.metrics.ReadingsClassified.WithLabelValues(string(level)).Inc()
			}
		}
	}

	if p.metrics != nil {
		p.metrics.SamplesIngested.WithLabelValues(source).Inc()
		p.updateOnlineGauge()
	}
	return nil
}

func (p *Pipeline) validate(r Reading) error {
	if r.DeviceID == "" {
		return errors.Newf("reading is missing its device ID").
			Component("ingest").
			Category(errors.CategoryValidation).
			Field("deviceID").
			Build()
	}
	if len(r.Values) == 0 {
		return errors.Newf("reading from %q carries no sensor values", r.DeviceID).
			Component("ingest").
			Category(errors.CategoryValidation).
			Field("values").
			Build()
	}
	for kind := range r.Values {
		if !kind.Valid() {
			return errors.Newf("unknown sensor %q in reading from %q", kind, r.DeviceID).
				Component("ingest").
				Category(errors.CategoryValidation).
				Field(string(kind)).
				Build()
		}
	}
	return nil
}

// ParseDocument converts a decoded telemetry document into a Reading.
// Sensor fields may be JSON numbers or strings; strings are kept raw so
// percent suffixes survive to the store. An optional "time" field carries
// epoch millis. Unknown fields are rejected later by validation.
func ParseDocument(deviceID string, doc map[string]any) (Reading, error) {
	reading := Reading{
		DeviceID: deviceID,
		Values:   make(sensor.Values, len(doc)),
	}
	for key, value := range doc {
		if key == "time" {
			if ts, ok := value.(float64); ok {
				reading.Timestamp = int64(ts)
			}
			continue
		}

		switch v := value.(type) {
		case string:
			reading.Values[sensor.Kind(key)] = v
		case float64:
			reading.Values[sensor.Kind(key)] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return Reading{}, errors.Newf("field %q has unsupported type", key).
				Component("ingest").
				Category(errors.CategoryValidation).
				Field(key).
				Build()
		}
	}
	return reading, nil
}

func (p *Pipeline) countError(source string) {
	if p.metrics != nil {
		p.metrics.IngestErrors.WithLabelValues(source).Inc()
	}
}

func (p *Pipeline) updateOnlineGauge() {
	online := 0
	for _, state := range p.tracker.Snapshot() {
		if state.Online {
			online++
		}
	}
	p.metrics.DevicesOnline.Set(float64(online))
}

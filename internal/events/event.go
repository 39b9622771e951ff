// Package events provides the asynchronous event bus connecting telemetry
// classification and device management to downstream consumers such as the
// notification engine. Publishing is non-blocking so the ingest hot path is
// never stalled by a slow consumer.
package events

import (
	"github.com/pondpal/pondpal-go/internal/sensor"
)

// Event is the interface implemented by everything published on the bus.
type Event interface {
	// GetDeviceID returns the device the event concerns.
	GetDeviceID() string
	// GetTimestamp returns the event time as Unix epoch milliseconds.
	GetTimestamp() int64
}

// ReadingEvent is published when a sensor reading is classified outside its
// configured threshold range.
type ReadingEvent struct {
	DeviceID  string
	Sensor    sensor.Kind
	Value     float64
	Min       float64
	Max       float64
	Level     string // "warning" or "critical"
	Timestamp int64  // epoch millis
}

// GetDeviceID implements Event.
func (e *ReadingEvent) GetDeviceID() string { return e.DeviceID }

// GetTimestamp implements Event.
func (e *ReadingEvent) GetTimestamp() int64 { return e.Timestamp }

// SettingsEvent is published when device settings or membership change
// through the management API, e.g. threshold updates or device attachment.
type SettingsEvent struct {
	DeviceID  string
	Action    string // e.g. "thresholds-updated", "device-added", "device-removed"
	Actor     string // user ID that performed the action, empty for system actions
	Detail    string // human readable description of the change
	Timestamp int64  // epoch millis
}

// GetDeviceID implements Event.
func (e *SettingsEvent) GetDeviceID() string { return e.DeviceID }

// GetTimestamp implements Event.
func (e *SettingsEvent) GetTimestamp() int64 { return e.Timestamp }

// StateEvent is published when a device transitions between online and
// offline in the live state tracker.
type StateEvent struct {
	DeviceID  string
	Online    bool
	Timestamp int64 // epoch millis
}

// GetDeviceID implements Event.
func (e *StateEvent) GetDeviceID() string { return e.DeviceID }

// GetTimestamp implements Event.
func (e *StateEvent) GetTimestamp() int64 { return e.Timestamp }

// Consumer processes events delivered by the bus. Implementations must be
// safe for concurrent calls from multiple workers.
type Consumer interface {
	// Name returns the consumer name for logging.
	Name() string
	// ProcessEvent handles a single event.
	ProcessEvent(event Event) error
}

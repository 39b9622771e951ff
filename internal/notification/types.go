// Package notification maintains the per-device alert log and the merged
// dashboard feed. It consumes classified readings and settings changes from
// the event bus, renders display metadata, bounds the in-memory working
// set, and persists entries for history.
package notification

import (
	"fmt"
	"strconv"

	"github.com/pondpal/pondpal-go/internal/sensor"
)

// Type distinguishes sensor alerts from settings change records.
type Type string

const (
	TypeSensor   Type = "sensor"
	TypeSettings Type = "settings"
)

// Notification is one feed entry. Immutable once created; Time is Unix
// epoch milliseconds and orders the feed descending.
type Notification struct {
	ID       string `json:"id"`
	DeviceID string `json:"deviceId"`
	Type     Type   `json:"type"`

	Sensor sensor.Kind `json:"sensor,omitempty"`
	Value  float64     `json:"sensorVal,omitempty"`
	Min    float64     `json:"min,omitempty"`
	Max    float64     `json:"max,omitempty"`
	Level  string      `json:"level,omitempty"` // "warning" or "critical"

	Action string `json:"action,omitempty"`
	Actor  string `json:"user,omitempty"`
	Detail string `json:"detail,omitempty"`

	Title   string `json:"title"`
	Message string `json:"message"`
	Time    int64  `json:"time"`
}

// Filter selects feed entries by classification.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterWarning  Filter = "warning"
	FilterCritical Filter = "critical"
	FilterInfo     Filter = "info"
)

// ParseFilter validates a feed filter string, defaulting empty to all.
func ParseFilter(s string) (Filter, bool) {
	switch Filter(s) {
	case "":
		return FilterAll, true
	case FilterAll, FilterWarning, FilterCritical, FilterInfo:
		return Filter(s), true
	}
	return "", false
}

// Matches reports whether the notification passes the filter. Settings
// change records count as informational.
func (n *Notification) Matches(f Filter) bool {
	switch f {
	case FilterAll:
		return true
	case FilterWarning:
		return n.Type == TypeSensor && n.Level == "warning"
	case FilterCritical:
		return n.Type == TypeSensor && n.Level == "critical"
	case FilterInfo:
		return n.Type == TypeSettings
	}
	return false
}

// renderAlert fills Title and Message in the shape the dashboard renders,
// e.g. "Critical: Low pH" / "pH value 5.2 is below minimum threshold (6.5)".
func renderAlert(n *Notification) {
	direction := "High"
	if n.Value < n.Min {
		direction = "Low"
	}

	severity := "Warning"
	if n.Level == "critical" {
		severity = "Critical"
	}

	name := n.Sensor.DisplayName()
	n.Title = fmt.Sprintf("%s: %s %s", severity, direction, name)

	if n.Value < n.Min {
		n.Message = fmt.Sprintf("%s value %s is below minimum threshold (%s)",
			name, formatReading(n.Sensor, n.Value), formatReading(n.Sensor, n.Min))
	} else {
		n.Message = fmt.Sprintf("%s value %s is above maximum threshold (%s)",
			name, formatReading(n.Sensor, n.Value), formatReading(n.Sensor, n.Max))
	}
}

// formatReading renders a sensor value with its display unit.
func formatReading(kind sensor.Kind, v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + kind.Unit()
}

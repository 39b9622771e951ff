// Package sensor defines the water quality sensor kinds tracked by a pond
// monitoring device and helpers for parsing raw readings.
package sensor

import (
	"strconv"
	"strings"
)

// Kind identifies a single water quality sensor on a device.
type Kind string

const (
	// KindPH is the acidity/alkalinity sensor (unitless pH scale)
	KindPH Kind = "ph"
	// KindTemp is the water temperature sensor in °C
	KindTemp Kind = "temp"
	// KindTDS is the total dissolved solids sensor in ppm
	KindTDS Kind = "tds"
	// KindTurb is the turbidity sensor in NTU
	KindTurb Kind = "turb"
	// KindWaterLevel is the water level sensor as a percentage of depth
	KindWaterLevel Kind = "watlvl"
)

// Kinds returns all sensor kinds in canonical display order. The order is
// load-bearing: advisory findings and rollup columns follow it.
func Kinds() []Kind {
	return []Kind{KindPH, KindTemp, KindTDS, KindTurb, KindWaterLevel}
}

// Valid reports whether k names a known sensor kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPH, KindTemp, KindTDS, KindTurb, KindWaterLevel:
		return true
	}
	return false
}

// DisplayName returns the human readable sensor name used in notifications
// and advisories.
func (k Kind) DisplayName() string {
	switch k {
	case KindPH:
		return "pH"
	case KindTemp:
		return "Temperature"
	case KindTDS:
		return "TDS"
	case KindTurb:
		return "Turbidity"
	case KindWaterLevel:
		return "Water Level"
	default:
		return string(k)
	}
}

// Unit returns the display unit for the sensor kind.
func (k Kind) Unit() string {
	switch k {
	case KindTemp:
		return "°C"
	case KindTDS:
		return "ppm"
	case KindTurb:
		return "NTU"
	case KindWaterLevel:
		return "%"
	default:
		return ""
	}
}

// Values holds one raw reading per sensor, keyed by kind. Raw values keep
// whatever form the hardware sent: plain numbers ("7.2") or percentage
// strings ("85%"). A kind missing from the map means the device did not
// report that sensor.
type Values map[Kind]string

// Parse extracts the numeric value from a raw reading. Percentage suffixes
// are stripped before parsing. Returns false for empty or non-numeric input;
// callers must exclude such readings rather than coerce them to zero.
func Parse(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Float returns the parsed numeric reading for kind k.
func (v Values) Float(k Kind) (float64, bool) {
	raw, ok := v[k]
	if !ok {
		return 0, false
	}
	return Parse(raw)
}

// Snapshot is a fully parsed set of current sensor values, keyed by kind.
// Kinds absent from the map had no parseable reading.
type Snapshot map[Kind]float64

// ToSnapshot parses every reading in v, dropping unparseable entries.
func (v Values) ToSnapshot() Snapshot {
	snap := make(Snapshot, len(v))
	for _, k := range Kinds() {
		if f, ok := v.Float(k); ok {
			snap[k] = f
		}
	}
	return snap
}

// FromFloats builds Values from already numeric readings, formatting with
// minimal precision. Used by tests and the HTTP ingest path.
func FromFloats(m map[Kind]float64) Values {
	v := make(Values, len(m))
	for k, f := range m {
		v[k] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return v
}

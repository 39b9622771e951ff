package datastore

import (
	"time"

	"github.com/pondpal/pondpal-go/internal/sensor"
)

// Device is a pond monitoring device known to the system. Devices register
// themselves out of band when the hardware first connects; attachment to a
// user dashboard is tracked separately in UserDevice.
type Device struct {
	ID         uint   `gorm:"primaryKey"`
	DeviceID   string `gorm:"uniqueIndex;not null"`
	LastSeenAt int64  // epoch millis of the last accepted sample, 0 if never
	CreatedAt  time.Time
}

// DeviceThreshold holds the per-device alert thresholds, one row per device.
// Water level bounds are percentages; Depth is the probe depth in meters.
type DeviceThreshold struct {
	ID       uint   `gorm:"primaryKey"`
	DeviceID string `gorm:"uniqueIndex;not null"`
	Enabled  bool

	PHMin   float64
	PHMax   float64
	TempMin float64
	TempMax float64
	TDSMin  float64
	TDSMax  float64
	TurbMin float64
	TurbMax float64
	WlvlMin float64
	WlvlMax float64

	Depth       float64
	PowerSaving bool

	UpdatedAt time.Time
}

// UserDevice attaches a registered device to a user's dashboard under a
// user-chosen display name. Both the device ID and the display name are
// unique within one user's list.
type UserDevice struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;uniqueIndex:idx_user_device,priority:1;not null"`
	Email     string
	DevID     string `gorm:"uniqueIndex:idx_user_device,priority:2;not null"`
	DevName   string `gorm:"not null"`
	CreatedAt time.Time
}

// DeviceUser is the device-side authorized users list: the emails allowed
// to see a device. Maintained alongside UserDevice on attach and detach.
type DeviceUser struct {
	ID       uint   `gorm:"primaryKey"`
	DeviceID string `gorm:"uniqueIndex:idx_device_user,priority:1;not null"`
	Email    string `gorm:"uniqueIndex:idx_device_user,priority:2;not null"`
}

// Sample is one telemetry reading set, keyed by device, calendar date and
// minute-of-day time key. Sensor columns keep the raw string the hardware
// sent; water level in particular may arrive as "85%".
type Sample struct {
	ID       uint   `gorm:"primaryKey"`
	DeviceID string `gorm:"uniqueIndex:idx_sample_key,priority:1;not null"`
	Date     string `gorm:"uniqueIndex:idx_sample_key,priority:2;not null"` // YYYY-MM-DD
	TimeKey  string `gorm:"uniqueIndex:idx_sample_key,priority:3;not null"` // HH:MM

	PH   string
	Temp string
	TDS  string
	Turb string
	Wlvl string
}

// Values returns the sample's raw readings keyed by sensor kind, omitting
// sensors the device did not report.
func (s *Sample) Values() sensor.Values {
	v := make(sensor.Values, 5)
	set := func(k sensor.Kind, raw string) {
		if raw != "" {
			v[k] = raw
		}
	}
	set(sensor.KindPH, s.PH)
	set(sensor.KindTemp, s.Temp)
	set(sensor.KindTDS, s.TDS)
	set(sensor.KindTurb, s.Turb)
	set(sensor.KindWaterLevel, s.Wlvl)
	return v
}

// SetValues fills the sample's sensor columns from raw readings.
func (s *Sample) SetValues(v sensor.Values) {
	s.PH = v[sensor.KindPH]
	s.Temp = v[sensor.KindTemp]
	s.TDS = v[sensor.KindTDS]
	s.Turb = v[sensor.KindTurb]
	s.Wlvl = v[sensor.KindWaterLevel]
}

// Notification is one persisted feed entry: a threshold alert or a settings
// change record. Timestamp is Unix epoch milliseconds.
type Notification struct {
	ID       uint   `gorm:"primaryKey"`
	NotifID  string `gorm:"uniqueIndex;not null"`
	DeviceID string `gorm:"index;not null"`
	Type     string // "alert" or "settings"

	// Alert fields
	Sensor string
	Value  float64
	Min    float64
	Max    float64
	Level  string // "warning" or "critical"

	// Settings change fields
	Action string
	Actor  string
	Detail string

	Title     string
	Message   string
	Timestamp int64 `gorm:"index"`
}

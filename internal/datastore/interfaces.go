// Package datastore handles database operations for telemetry samples,
// device registrations, thresholds, dashboard memberships and the persisted
// notification history. SQLite and MySQL backends are supported through GORM.
package datastore

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/pondpal/pondpal-go/internal/conf"
	"github.com/pondpal/pondpal-go/internal/errors"
)

// Interface defines the storage operations used by the services.
type Interface interface {
	Open() error
	Close() error

	// Device registry
	RegisterDevice(deviceID string) error
	DeviceExists(deviceID string) (bool, error)
	GetDevice(deviceID string) (*Device, error)
	TouchDevice(deviceID string, ts int64) error
	ListDeviceIDs() ([]string, error)

	// Telemetry samples
	AppendSample(ctx context.Context, s *Sample) error
	GetSamples(ctx context.Context, deviceID, date string) ([]Sample, error)

	// Thresholds
	GetThreshold(deviceID string) (*DeviceThreshold, error)
	SaveThreshold(t *DeviceThreshold) error

	// Dashboard membership
	GetUserDevices(userID string) ([]UserDevice, error)
	AttachDevice(ud *UserDevice) error
	DetachDevice(userID, devID string) (*UserDevice, error)
	DeviceMembershipCount(devID string) (int64, error)

	// Notification history
	SaveNotification(n *Notification) error
	GetDeviceNotifications(deviceID string, limit int) ([]Notification, error)
}

// DataStore implements Interface using a GORM database handle. The concrete
// stores (SQLiteStore, MySQLStore) embed it and provide Open.
type DataStore struct {
	DB *gorm.DB
}

// New creates a new datastore implementation based on the configured output.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve database connection: %w", err)
	}
	return sqlDB.Close()
}

// RegisterDevice records a device seen for the first time. Registering an
// already known device is a no-op.
func (ds *DataStore) RegisterDevice(deviceID string) error {
	if deviceID == "" {
		return errors.Newf("device ID must not be empty").
			Component("datastore").
			Category(errors.CategoryValidation).
			Field("deviceID").
			Build()
	}

	device := Device{DeviceID: deviceID}
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoNothing: true,
	}).Create(&device).Error
	if err != nil {
		return storeErr("register device", err, "device_id", deviceID)
	}
	return nil
}

// DeviceExists reports whether a device is registered.
func (ds *DataStore) DeviceExists(deviceID string) (bool, error) {
	var count int64
	err := ds.DB.Model(&Device{}).Where("device_id = ?", deviceID).Count(&count).Error
	if err != nil {
		return false, storeErr("check device", err, "device_id", deviceID)
	}
	return count > 0, nil
}

// GetDevice returns the registration record for a device.
func (ds *DataStore) GetDevice(deviceID string) (*Device, error) {
	var device Device
	err := ds.DB.Where("device_id = ?", deviceID).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("device", deviceID)
		}
		return nil, storeErr("get device", err, "device_id", deviceID)
	}
	return &device, nil
}

// TouchDevice records the time of the device's latest accepted sample.
func (ds *DataStore) TouchDevice(deviceID string, ts int64) error {
	result := ds.DB.Model(&Device{}).
		Where("device_id = ?", deviceID).
		Update("last_seen_at", ts)
	if result.Error != nil {
		return storeErr("touch device", result.Error, "device_id", deviceID)
	}
	if result.RowsAffected == 0 {
		return notFoundErr("device", deviceID)
	}
	return nil
}

// ListDeviceIDs returns the IDs of all registered devices.
func (ds *DataStore) ListDeviceIDs() ([]string, error) {
	var ids []string
	err := ds.DB.Model(&Device{}).Order("device_id").Pluck("device_id", &ids).Error
	if err != nil {
		return nil, storeErr("list devices", err, "", "")
	}
	return ids, nil
}

// AppendSample stores one telemetry reading set. The device must already be
// registered. A sample landing on an existing (device, date, time) key
// replaces that key's readings; history is otherwise append-only.
func (ds *DataStore) AppendSample(ctx context.Context, s *Sample) error {
	if err := validateSampleKey(s); err != nil {
		return err
	}

	exists, err := ds.DeviceExists(s.DeviceID)
	if err != nil {
		return err
	}
	if !exists {
		return notFoundErr("device", s.DeviceID)
	}

	err = ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "date"}, {Name: "time_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"ph", "temp", "tds", "turb", "wlvl"}),
	}).Create(s).Error
	if err != nil {
		return storeErr("append sample", err, "device_id", s.DeviceID)
	}
	return nil
}

// GetSamples returns the samples of one device for one calendar date,
// ordered by time of day. Time keys are compared as minutes since midnight,
// not as strings, so "9:30" sorts before "10:05". Unknown devices and days
// with no data both yield an empty slice.
func (ds *DataStore) GetSamples(ctx context.Context, deviceID, date string) ([]Sample, error) {
	var samples []Sample
	err := ds.DB.WithContext(ctx).
		Where("device_id = ? AND date = ?", deviceID, date).
		Find(&samples).Error
	if err != nil {
		return nil, storeErr("get samples", err, "device_id", deviceID)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return MinuteOfDay(samples[i].TimeKey) < MinuteOfDay(samples[j].TimeKey)
	})
	return samples, nil
}

// GetThreshold returns the stored thresholds for a device.
func (ds *DataStore) GetThreshold(deviceID string) (*DeviceThreshold, error) {
	var t DeviceThreshold
	err := ds.DB.Where("device_id = ?", deviceID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("thresholds for device", deviceID)
		}
		return nil, storeErr("get threshold", err, "device_id", deviceID)
	}
	return &t, nil
}

// SaveThreshold stores the thresholds for a device, replacing any previous
// configuration.
func (ds *DataStore) SaveThreshold(t *DeviceThreshold) error {
	err := ds.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled",
			"ph_min", "ph_max",
			"temp_min", "temp_max",
			"tds_min", "tds_max",
			"turb_min", "turb_max",
			"wlvl_min", "wlvl_max",
			"depth", "power_saving",
			"updated_at",
		}),
	}).Create(t).Error
	if err != nil {
		return storeErr("save threshold", err, "device_id", t.DeviceID)
	}
	return nil
}

// GetUserDevices returns a user's attached devices in attachment order. A
// user with no devices yields an empty slice.
func (ds *DataStore) GetUserDevices(userID string) ([]UserDevice, error) {
	var devices []UserDevice
	err := ds.DB.Where("user_id = ?", userID).Order("id").Find(&devices).Error
	if err != nil {
		return nil, storeErr("get user devices", err, "user_id", userID)
	}
	return devices, nil
}

// AttachDevice records a dashboard membership and adds the user's email to
// the device's authorized users list in one transaction. Last write wins on
// the authorized users side.
func (ds *DataStore) AttachDevice(ud *UserDevice) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ud).Error; err != nil {
			return err
		}
		if ud.Email == "" {
			return nil
		}
		du := DeviceUser{DeviceID: ud.DevID, Email: ud.Email}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}, {Name: "email"}},
			DoNothing: true,
		}).Create(&du).Error
	})
	if err != nil {
		return storeErr("attach device", err, "user_id", ud.UserID)
	}
	return nil
}

// DetachDevice removes a dashboard membership and the matching authorized
// users entry, returning the removed membership record.
func (ds *DataStore) DetachDevice(userID, devID string) (*UserDevice, error) {
	var ud UserDevice
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND dev_id = ?", userID, devID).First(&ud).Error; err != nil {
			return err
		}
		if err := tx.Delete(&UserDevice{}, ud.ID).Error; err != nil {
			return err
		}
		if ud.Email == "" {
			return nil
		}
		return tx.Where("device_id = ? AND email = ?", devID, ud.Email).
			Delete(&DeviceUser{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("attached device", devID)
		}
		return nil, storeErr("detach device", err, "user_id", userID)
	}
	return &ud, nil
}

// DeviceMembershipCount returns how many dashboards a device is attached to.
func (ds *DataStore) DeviceMembershipCount(devID string) (int64, error) {
	var count int64
	err := ds.DB.Model(&UserDevice{}).Where("dev_id = ?", devID).Count(&count).Error
	if err != nil {
		return 0, storeErr("count memberships", err, "device_id", devID)
	}
	return count, nil
}

// SaveNotification appends one entry to the persisted notification history.
func (ds *DataStore) SaveNotification(n *Notification) error {
	if err := ds.DB.Create(n).Error; err != nil {
		return storeErr("save notification", err, "device_id", n.DeviceID)
	}
	return nil
}

// GetDeviceNotifications returns the newest notifications of one device,
// most recent first, at most limit entries.
func (ds *DataStore) GetDeviceNotifications(deviceID string, limit int) ([]Notification, error) {
	var notifications []Notification
	err := ds.DB.Where("device_id = ?", deviceID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, storeErr("get notifications", err, "device_id", deviceID)
	}
	return notifications, nil
}

// MinuteOfDay converts an "HH:MM" time key to minutes since midnight.
// Malformed keys sort first.
func MinuteOfDay(timeKey string) int {
	h, m, ok := strings.Cut(timeKey, ":")
	if !ok {
		return -1
	}
	hours, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return -1
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil {
		return -1
	}
	return hours*60 + minutes
}

func validateSampleKey(s *Sample) error {
	field := ""
	switch {
	case s.DeviceID == "":
		field = "deviceID"
	case s.Date == "":
		field = "date"
	case MinuteOfDay(s.TimeKey) < 0:
		field = "timeKey"
	}
	if field == "" {
		return nil
	}
	return errors.Newf("sample has invalid %s", field).
		Component("datastore").
		Category(errors.CategoryValidation).
		Field(field).
		Build()
}

func notFoundErr(what, id string) error {
	return errors.Newf("%s %q not found", what, id).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("id", id).
		Build()
}

// storeErr wraps backend failures as transient so read paths can degrade
// and write paths can map to a retryable status.
func storeErr(op string, err error, key, value string) error {
	b := errors.Newf("failed to %s: %w", op, err).
		Component("datastore").
		Category(errors.CategoryTransient)
	if key != "" {
		b = b.Context(key, value)
	}
	return b.Build()
}

// performAutoMigration runs GORM auto-migration for all models.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Device{}, &DeviceThreshold{}, &UserDevice{}, &DeviceUser{}, &Sample{}, &Notification{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger creates a GORM logger that only surfaces slow queries
// and errors.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}

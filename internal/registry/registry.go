// Package registry manages dashboard membership: attaching registered
// devices to users, detaching them, and listing a user's devices. Devices
// themselves register out of band when the hardware first reports; the
// registry never creates them implicitly.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pondpal/pondpal-go/internal/datastore"
	"github.com/pondpal/pondpal-go/internal/devstate"
	"github.com/pondpal/pondpal-go/internal/errors"
	"github.com/pondpal/pondpal-go/internal/events"
	"github.com/pondpal/pondpal-go/internal/logging"
	"github.com/pondpal/pondpal-go/internal/notification"
)

// Attached is one entry of a user's device list.
type Attached struct {
	DevID   string `json:"devId"`
	DevName string `json:"devName"`
}

// Service implements the membership operations.
type Service struct {
	ds            datastore.Interface
	bus           *events.Bus
	notifications *notification.Engine
	tracker       *devstate.Tracker
	logger        *slog.Logger
	now           func() time.Time
}

// NewService creates a registry service. The notification engine and
// tracker are used for cleanup on detach; the bus records membership
// changes in the feed. Any of them may be nil in trimmed-down setups.
func NewService(ds datastore.Interface, bus *events.Bus, notifications *notification.Engine, tracker *devstate.Tracker) *Service {
	return &Service{
		ds:            ds,
		bus:           bus,
		notifications: notifications,
		tracker:       tracker,
		logger:        logging.ForService("registry"),
		now:           time.Now,
	}
}

// AddDevice attaches a registered device to the user's dashboard under the
// given display name. The device must already exist; attaching the same
// device twice is a conflict and reusing a display name is invalid.
func (s *Service) AddDevice(ctx context.Context, userID, email, deviceID, name string) (*Attached, error) {
	switch {
	case userID == "":
		return nil, s.validationErr("userID", "must not be empty")
	case deviceID == "":
		return nil, s.validationErr("deviceId", "must not be empty")
	case name == "":
		return nil, s.validationErr("deviceName", "must not be empty")
	}

	exists, err := s.ds.DeviceExists(deviceID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Newf("device %q not found", deviceID).
			Component("registry").
			Category(errors.CategoryNotFound).
			Context("device_id", deviceID).
			Build()
	}

	existing, err := s.ds.GetUserDevices(userID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].DevID == deviceID {
			return nil, errors.Newf("device %q is already attached", deviceID).
				Component("registry").
				Category(errors.CategoryConflict).
				Context("device_id", deviceID).
				Build()
		}
		if existing[i].DevName == name {
			return nil, s.validationErr("deviceName", fmt.Sprintf("%q is already in use", name))
		}
	}

	err = s.ds.AttachDevice(&datastore.UserDevice{
		UserID:  userID,
		Email:   email,
		DevID:   deviceID,
		DevName: name,
	})
	if err != nil {
		return nil, err
	}

	s.publish(deviceID, "device-added", userID, fmt.Sprintf("Device %q added to dashboard", name))
	s.logger.Info("device attached", "user_id", userID, "device_id", deviceID, "name", name)

	return &Attached{DevID: deviceID, DevName: name}, nil
}

// RemoveDevice detaches a device from the user's dashboard and purges its
// entries from the feed's working set. Samples and the persisted
// notification history are kept for long-term record either way; only the
// in-memory live state is dropped once no dashboard has the device anymore.
func (s *Service) RemoveDevice(ctx context.Context, userID, deviceID string) error {
	removed, err := s.ds.DetachDevice(userID, deviceID)
	if err != nil {
		return err
	}

	if s.notifications != nil {
		s.notifications.PurgeDevice(deviceID)
	}

	if s.tracker != nil {
		remaining, err := s.ds.DeviceMembershipCount(deviceID)
		if err != nil {
			s.logger.Warn("membership count unavailable, keeping live state",
				"device_id", deviceID,
				"error", err,
			)
			remaining = 1
		}
		if remaining == 0 {
			s.tracker.Forget(deviceID)
		}
	}

	s.publish(deviceID, "device-removed", userID, fmt.Sprintf("Device %q removed from dashboard", removed.DevName))
	s.logger.Info("device detached", "user_id", userID, "device_id", deviceID)
	return nil
}

// ListDevices returns the user's attached devices in attachment order.
func (s *Service) ListDevices(ctx context.Context, userID string) ([]Attached, error) {
	records, err := s.ds.GetUserDevices(userID)
	if err != nil {
		return nil, err
	}

	devices := make([]Attached, 0, len(records))
	for i := range records {
		devices = append(devices, Attached{
			DevID:   records[i].DevID,
			DevName: records[i].DevName,
		})
	}
	return devices, nil
}

func (s *Service) publish(deviceID, action, actor, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.TryPublish(&events.SettingsEvent{
		DeviceID:  deviceID,
		Action:    action,
		Actor:     actor,
		Detail:    detail,
		Timestamp: s.now().UnixMilli(),
	})
}

func (s *Service) validationErr(field, reason string) error {
	return errors.Newf("%s %s", field, reason).
		Component("registry").
		Category(errors.CategoryValidation).
		Field(field).
		Build()
}

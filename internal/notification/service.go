package notification

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pondpal/pondpal-go/internal/conf"
	"github.com/pondpal/pondpal-go/internal/datastore"
	"github.com/pondpal/pondpal-go/internal/events"
	"github.com/pondpal/pondpal-go/internal/logging"
	"github.com/pondpal/pondpal-go/internal/sensor"
)

// Engine consumes bus events, maintains the bounded in-memory working set
// and persists every entry for history. It implements events.Consumer.
type Engine struct {
	settings conf.NotificationSettings
	ds       datastore.Interface
	limiter  *RateLimiter
	logger   *slog.Logger

	mu       sync.RWMutex
	byDevice map[string][]*Notification // newest first, bounded per device
	total    int
}

// NewEngine creates a notification engine.
func NewEngine(settings conf.NotificationSettings, ds datastore.Interface) *Engine {
	return &Engine{
		settings: settings,
		ds:       ds,
		limiter:  NewRateLimiter(settings.RateLimitWindow, settings.RateLimitMaxEvents),
		logger:   logging.ForService("notification"),
		byDevice: make(map[string][]*Notification),
	}
}

// Name implements events.Consumer.
func (e *Engine) Name() string { return "notification" }

// ProcessEvent implements events.Consumer. Sensor alerts are created for
// warning and critical classifications only and are subject to the rate
// limiter; settings changes and state transitions are always recorded.
func (e *Engine) ProcessEvent(event events.Event) error {
	switch ev := event.(type) {
	case *events.ReadingEvent:
		return e.onClassifiedReading(ev)
	case *events.SettingsEvent:
		return e.onSettingsChanged(ev)
	case *events.StateEvent:
		return e.onStateChanged(ev)
	default:
		return nil
	}
}

func (e *Engine) onClassifiedReading(ev *events.ReadingEvent) error {
	if ev.Level != "warning" && ev.Level != "critical" {
		return nil
	}
	if !e.limiter.Allow() {
		if e.settings.Debug {
			e.logger.Debug("alert rate limited",
				"device_id", ev.DeviceID,
				"sensor", ev.Sensor,
			)
		}
		return nil
	}

	n := &Notification{
		ID:       uuid.New().String(),
		DeviceID: ev.DeviceID,
		Type:     TypeSensor,
		Sensor:   ev.Sensor,
		Value:    ev.Value,
		Min:      ev.Min,
		Max:      ev.Max,
		Level:    ev.Level,
		Time:     ev.Timestamp,
	}
	renderAlert(n)
	return e.record(n)
}

func (e *Engine) onSettingsChanged(ev *events.SettingsEvent) error {
	n := &Notification{
		ID:       uuid.New().String(),
		DeviceID: ev.DeviceID,
		Type:     TypeSettings,
		Action:   ev.Action,
		Actor:    ev.Actor,
		Detail:   ev.Detail,
		Title:    "Settings changed",
		Message:  ev.Detail,
		Time:     ev.Timestamp,
	}
	return e.record(n)
}

func (e *Engine) onStateChanged(ev *events.StateEvent) error {
	action := "device-offline"
	title := "Device offline"
	message := fmt.Sprintf("Device %s stopped reporting", ev.DeviceID)
	if ev.Online {
		action = "device-online"
		title = "Device online"
		message = fmt.Sprintf("Device %s is reporting again", ev.DeviceID)
	}

	n := &Notification{
		ID:       uuid.New().String(),
		DeviceID: ev.DeviceID,
		Type:     TypeSettings,
		Action:   action,
		Detail:   message,
		Title:    title,
		Message:  message,
		Time:     ev.Timestamp,
	}
	return e.record(n)
}

// record inserts the entry into the working set and persists it. The entry
// stays in the feed even when persistence fails; history is then missing
// one row, which the error surfaces.
func (e *Engine) record(n *Notification) error {
	e.insert(n)

	if err := e.ds.SaveNotification(toRecord(n)); err != nil {
		return fmt.Errorf("persisting notification %s: %w", n.ID, err)
	}
	return nil
}

// insert places the entry newest-first in its device log, enforcing the
// per-device and global working set bounds.
func (e *Engine) insert(n *Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := e.byDevice[n.DeviceID]
	idx := sort.Search(len(log), func(i int) bool { return log[i].Time <= n.Time })
	log = append(log, nil)
	copy(log[idx+1:], log[idx:])
	log[idx] = n
	e.total++

	if len(log) > e.settings.FeedLimitPerDevice {
		log = log[:e.settings.FeedLimitPerDevice]
		e.total--
	}
	e.byDevice[n.DeviceID] = log

	for e.total > e.settings.MaxNotifications {
		e.evictOldestLocked()
	}
}

// evictOldestLocked drops the globally oldest working set entry.
func (e *Engine) evictOldestLocked() {
	oldestDevice := ""
	oldestTime := int64(0)
	for deviceID, log := range e.byDevice {
		if len(log) == 0 {
			continue
		}
		last := log[len(log)-1]
		if oldestDevice == "" || last.Time < oldestTime {
			oldestDevice = deviceID
			oldestTime = last.Time
		}
	}
	if oldestDevice == "" {
		e.total = 0
		return
	}
	log := e.byDevice[oldestDevice]
	e.byDevice[oldestDevice] = log[:len(log)-1]
	e.total--
}

// Feed merges each device's most recent entries into one descending feed:
// per-device contribution is bounded, entries are deduplicated by ID, the
// merged result is re-sorted by time and truncated, then filtered for
// display. Devices absent from deviceIDs never contribute, so a shrinking
// membership implicitly purges their entries from the result.
func (e *Engine) Feed(deviceIDs []string, filter Filter) []Notification {
	merged := make([]Notification, 0, e.settings.FeedTotalLimit)
	seen := make(map[string]struct{})

	for _, deviceID := range deviceIDs {
		for _, n := range e.deviceLog(deviceID) {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			merged = append(merged, n)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Time > merged[j].Time })
	if len(merged) > e.settings.FeedTotalLimit {
		merged = merged[:e.settings.FeedTotalLimit]
	}

	if filter == FilterAll {
		return merged
	}
	filtered := merged[:0]
	for _, n := range merged {
		if n.Matches(filter) {
			filtered = append(filtered, n)
		}
	}
	return filtered
}

// deviceLog returns a device's working set entries, backfilling from the
// persisted history on a cold cache. Transient history failures degrade to
// an empty contribution with a logged warning.
func (e *Engine) deviceLog(deviceID string) []Notification {
	e.mu.RLock()
	log, cached := e.byDevice[deviceID]
	if cached {
		out := make([]Notification, len(log))
		for i, n := range log {
			out[i] = *n
		}
		e.mu.RUnlock()
		return out
	}
	e.mu.RUnlock()

	records, err := e.ds.GetDeviceNotifications(deviceID, e.settings.FeedLimitPerDevice)
	if err != nil {
		e.logger.Warn("notification history unavailable, feed degraded",
			"device_id", deviceID,
			"error", err,
		)
		return nil
	}

	out := make([]Notification, 0, len(records))
	e.mu.Lock()
	if _, raced := e.byDevice[deviceID]; !raced {
		cachedLog := make([]*Notification, 0, len(records))
		for i := range records {
			n := fromRecord(&records[i])
			cachedLog = append(cachedLog, n)
			out = append(out, *n)
		}
		e.byDevice[deviceID] = cachedLog
		e.total += len(cachedLog)
		for e.total > e.settings.MaxNotifications {
			e.evictOldestLocked()
		}
	} else {
		for _, n := range e.byDevice[deviceID] {
			out = append(out, *n)
		}
	}
	e.mu.Unlock()
	return out
}

// PurgeDevice drops a device's entries from the working set, e.g. after it
// is detached from a dashboard. The persisted history stays untouched; a
// later re-attachment backfills the feed from it.
func (e *Engine) PurgeDevice(deviceID string) {
	e.mu.Lock()
	if log, ok := e.byDevice[deviceID]; ok {
		e.total -= len(log)
		delete(e.byDevice, deviceID)
	}
	e.mu.Unlock()
}

func toRecord(n *Notification) *datastore.Notification {
	return &datastore.Notification{
		NotifID:   n.ID,
		DeviceID:  n.DeviceID,
		Type:      string(n.Type),
		Sensor:    string(n.Sensor),
		Value:     n.Value,
		Min:       n.Min,
		Max:       n.Max,
		Level:     n.Level,
		Action:    n.Action,
		Actor:     n.Actor,
		Detail:    n.Detail,
		Title:     n.Title,
		Message:   n.Message,
		Timestamp: n.Time,
	}
}

func fromRecord(r *datastore.Notification) *Notification {
	return &Notification{
		ID:       r.NotifID,
		DeviceID: r.DeviceID,
		Type:     Type(r.Type),
		Sensor:   sensor.Kind(r.Sensor),
		Value:    r.Value,
		Min:      r.Min,
		Max:      r.Max,
		Level:    r.Level,
		Action:   r.Action,
		Actor:    r.Actor,
		Detail:   r.Detail,
		Title:    r.Title,
		Message:  r.Message,
		Time:     r.Timestamp,
	}
}

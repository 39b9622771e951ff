// Package devstate tracks the live state of pond monitoring devices: their
// most recent sensor readings and whether they are currently online. State
// is held in memory and re-derived from heartbeat times, so a device that
// stops reporting goes offline even though no new sample arrives.
package devstate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pondpal/pondpal-go/internal/conf"
	"github.com/pondpal/pondpal-go/internal/events"
	"github.com/pondpal/pondpal-go/internal/logging"
	"github.com/pondpal/pondpal-go/internal/sensor"
)

// LiveState is the current view of one device.
type LiveState struct {
	DeviceID   string
	Values     sensor.Values
	LastUpdate int64 // epoch millis of the last accepted sample
	Online     bool
}

// Update is delivered to subscribers whenever a device's live state changes.
type Update struct {
	State       LiveState
	WentOnline  bool
	WentOffline bool
}

// OnlineAt reports whether a device with the given heartbeat time counts as
// online at now, both in epoch millis. The boundary is exclusive: a device
// exactly window old is offline. A device that never reported is offline.
func OnlineAt(lastUpdate, now int64, window time.Duration) bool {
	if lastUpdate <= 0 {
		return false
	}
	return now-lastUpdate < window.Milliseconds()
}

// subscriber is one update listener, optionally scoped to a single device.
type subscriber struct {
	deviceID string // empty subscribes to every device
	ch       chan Update
}

// Tracker holds live device state and fans out updates to subscribers.
type Tracker struct {
	settings conf.TrackerSettings

	mu          sync.RWMutex
	states      map[string]*LiveState
	subscribers map[string]subscriber

	bus    *events.Bus
	logger *slog.Logger

	now func() time.Time

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewTracker creates a tracker and starts its offline re-derivation loop.
// The bus may be nil; online/offline transitions are then only delivered to
// subscribers.
func NewTracker(settings conf.TrackerSettings, bus *events.Bus) *Tracker {
	return newTracker(settings, bus, time.Now)
}

// newTracker takes the clock before the re-derivation goroutine starts, so
// tests can substitute it without racing the loop.
func newTracker(settings conf.TrackerSettings, bus *events.Bus, now func() time.Time) *Tracker {
	t := &Tracker{
		settings:    settings,
		states:      make(map[string]*LiveState),
		subscribers: make(map[string]subscriber),
		bus:         bus,
		logger:      logging.ForService("devstate"),
		now:         now,
		done:        make(chan struct{}),
	}

	t.wg.Add(1)
	go t.rederiveLoop()

	return t
}

// Apply records a new sample for a device and returns the resulting live
// state together with the readings that actually changed, so the caller can
// classify only fresh values. Updates for one device are serialized;
// concurrent calls observe a consistent last-writer-wins state.
func (t *Tracker) Apply(deviceID string, values sensor.Values, ts int64) (LiveState, sensor.Values) {
	t.mu.Lock()

	state, ok := t.states[deviceID]
	if !ok {
		state = &LiveState{DeviceID: deviceID}
		t.states[deviceID] = state
	}

	changed := make(sensor.Values, len(values))
	for kind, raw := range values {
		if state.Values[kind] != raw {
			changed[kind] = raw
		}
	}

	wasOnline := state.Online
	state.Values = values
	state.LastUpdate = ts
	state.Online = OnlineAt(ts, t.now().UnixMilli(), t.settings.OfflineAfter)

	update := Update{
		State:       *state,
		WentOnline:  !wasOnline && state.Online,
		WentOffline: wasOnline && !state.Online,
	}
	t.mu.Unlock()

	t.notify(update)
	return update.State, changed
}

// Get returns the live state of one device, re-deriving online freshness at
// call time.
func (t *Tracker) Get(deviceID string) (LiveState, bool) {
	now := t.now().UnixMilli()

	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[deviceID]
	if !ok {
		return LiveState{}, false
	}
	s := *state
	s.Online = OnlineAt(s.LastUpdate, now, t.settings.OfflineAfter)
	return s, true
}

// Snapshot returns the live state of all tracked devices.
func (t *Tracker) Snapshot() []LiveState {
	now := t.now().UnixMilli()

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]LiveState, 0, len(t.states))
	for _, state := range t.states {
		s := *state
		s.Online = OnlineAt(s.LastUpdate, now, t.settings.OfflineAfter)
		out = append(out, s)
	}
	return out
}

// Backfill seeds a device's live state from a persisted heartbeat time,
// used when the service restarts and a device is queried before its next
// sample arrives. A fresher in-memory state always wins.
func (t *Tracker) Backfill(deviceID string, lastUpdate int64) LiveState {
	now := t.now().UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[deviceID]
	if !ok {
		state = &LiveState{DeviceID: deviceID}
		t.states[deviceID] = state
	}
	if lastUpdate > state.LastUpdate {
		state.LastUpdate = lastUpdate
	}
	state.Online = OnlineAt(state.LastUpdate, now, t.settings.OfflineAfter)
	return *state
}

// Forget drops a device's live state, e.g. after it is detached from its
// last dashboard.
func (t *Tracker) Forget(deviceID string) {
	t.mu.Lock()
	delete(t.states, deviceID)
	t.mu.Unlock()
}

// Subscribe returns a channel receiving live state updates for one device
// and a function that cancels the subscription. An empty deviceID subscribes
// to every device. Slow subscribers have updates dropped rather than
// stalling the tracker.
func (t *Tracker) Subscribe(deviceID string) (<-chan Update, func()) {
	id := uuid.New().String()
	sub := subscriber{
		deviceID: deviceID,
		ch:       make(chan Update, t.settings.ChannelBuffer),
	}

	t.mu.Lock()
	t.subscribers[id] = sub
	t.mu.Unlock()

	unsubscribe := func() {
		t.mu.Lock()
		if existing, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(existing.ch)
		}
		t.mu.Unlock()
	}
	return sub.ch, unsubscribe
}

// Stop terminates the re-derivation loop and closes all subscriptions.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.wg.Wait()

		t.mu.Lock()
		for id, sub := range t.subscribers {
			delete(t.subscribers, id)
			close(sub.ch)
		}
		t.mu.Unlock()
	})
}

func (t *Tracker) notify(update Update) {
	t.mu.RLock()
	for id, sub := range t.subscribers {
		if sub.deviceID != "" && sub.deviceID != update.State.DeviceID {
			continue
		}
		select {
		case sub.ch <- update:
		default:
			t.logger.Warn("subscriber channel full, dropping update",
				"subscriber", id,
				"device_id", update.State.DeviceID,
			)
		}
	}
	t.mu.RUnlock()

	if t.bus != nil && (update.WentOnline || update.WentOffline) {
		t.bus.TryPublish(&events.StateEvent{
			DeviceID:  update.State.DeviceID,
			Online:    update.State.Online,
			Timestamp: t.now().UnixMilli(),
		})
	}
}

// rederiveLoop periodically flips devices to offline when their heartbeat
// ages past the window, so state stays fresh without new samples.
func (t *Tracker) rederiveLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.settings.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.rederive()
		}
	}
}

func (t *Tracker) rederive() {
	now := t.now().UnixMilli()

	var updates []Update
	t.mu.Lock()
	for _, state := range t.states {
		online := OnlineAt(state.LastUpdate, now, t.settings.OfflineAfter)
		if online == state.Online {
			continue
		}
		state.Online = online
		updates = append(updates, Update{
			State:       *state,
			WentOnline:  online,
			WentOffline: !online,
		})
	}
	t.mu.Unlock()

	for _, update := range updates {
		if t.settings.Debug {
			t.logger.Debug("device state re-derived",
				"device_id", update.State.DeviceID,
				"online", update.State.Online,
			)
		}
		t.notify(update)
	}
}

package events

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pondpal/pondpal-go/internal/logging"
)

// Config holds event bus configuration.
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration.
func DefaultConfig() *Config {
	return &Config{
		BufferSize: 1024,
		Workers:    4,
	}
}

// Stats tracks event bus metrics.
type Stats struct {
	EventsReceived  atomic.Int64
	EventsProcessed atomic.Int64
	EventsDropped   atomic.Int64
	ConsumerErrors  atomic.Int64
}

// Bus provides asynchronous event processing with non-blocking publishing.
// Events are fanned out to every registered consumer by a fixed pool of
// worker goroutines.
type Bus struct {
	eventChan chan Event

	workers int

	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.RWMutex

	consumers []Consumer

	stats Stats

	logger *slog.Logger
}

// NewBus creates an event bus with the given configuration and starts its
// workers. A nil config uses DefaultConfig.
func NewBus(config *Config) *Bus {
	if config == nil {
		config = DefaultConfig()
	}

	eb := &Bus{
		eventChan: make(chan Event, config.BufferSize),
		workers:   config.Workers,
		done:      make(chan struct{}),
		logger:    logging.ForService("events"),
	}
	eb.start()

	eb.logger.Info("event bus started",
		"buffer_size", config.BufferSize,
		"workers", config.Workers,
	)
	return eb
}

// RegisterConsumer adds a consumer to the bus. Consumers registered after
// events have been published only see events not yet dispatched.
func (eb *Bus) RegisterConsumer(consumer Consumer) error {
	if consumer == nil {
		return fmt.Errorf("consumer cannot be nil")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, c := range eb.consumers {
		if c.Name() == consumer.Name() {
			return fmt.Errorf("consumer %s already registered", consumer.Name())
		}
	}
	eb.consumers = append(eb.consumers, consumer)

	eb.logger.Info("consumer registered", "consumer", consumer.Name())
	return nil
}

// TryPublish attempts to publish an event without blocking. Returns false if
// the event was dropped because the buffer is full or the bus is stopped.
func (eb *Bus) TryPublish(event Event) bool {
	if event == nil || !eb.running.Load() {
		return false
	}

	eb.stats.EventsReceived.Add(1)

	select {
	case eb.eventChan <- event:
		return true
	default:
		eb.stats.EventsDropped.Add(1)
		eb.logger.Warn("event dropped, buffer full",
			"device_id", event.GetDeviceID(),
		)
		return false
	}
}

func (eb *Bus) start() {
	eb.running.Store(true)
	for i := 0; i < eb.workers; i++ {
		eb.wg.Add(1)
		go eb.worker(i)
	}
}

func (eb *Bus) worker(id int) {
	defer eb.wg.Done()

	logger := eb.logger.With("worker_id", id)
	for {
		select {
		case event, ok := <-eb.eventChan:
			if !ok {
				return
			}
			eb.processEvent(event, logger)
		case <-eb.done:
			// Drain remaining events before exiting.
			for {
				select {
				case event, ok := <-eb.eventChan:
					if !ok {
						return
					}
					eb.processEvent(event, logger)
				default:
					return
				}
			}
		}
	}
}

// processEvent dispatches one event to every consumer. A panicking consumer
// is logged and skipped; it must not take down the worker.
func (eb *Bus) processEvent(event Event, logger *slog.Logger) {
	eb.mu.RLock()
	consumers := eb.consumers
	eb.mu.RUnlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.stats.ConsumerErrors.Add(1)
					logger.Error("consumer panicked",
						"consumer", consumer.Name(),
						"panic", r,
					)
				}
			}()

			if err := consumer.ProcessEvent(event); err != nil {
				eb.stats.ConsumerErrors.Add(1)
				logger.Error("consumer failed to process event",
					"consumer", consumer.Name(),
					"device_id", event.GetDeviceID(),
					"error", err,
				)
			}
		}()
	}

	eb.stats.EventsProcessed.Add(1)
}

// Shutdown stops the bus, waiting up to timeout for in-flight events to be
// processed. Events published after Shutdown are dropped.
func (eb *Bus) Shutdown(timeout time.Duration) error {
	if !eb.running.CompareAndSwap(true, false) {
		return nil
	}
	close(eb.done)

	doneCh := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		eb.logger.Info("event bus shut down",
			"processed", eb.stats.EventsProcessed.Load(),
			"dropped", eb.stats.EventsDropped.Load(),
		)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("event bus shutdown timed out after %v", timeout)
	}
}

// GetStats returns a snapshot of the bus counters.
func (eb *Bus) GetStats() map[string]int64 {
	return map[string]int64{
		"events_received":  eb.stats.EventsReceived.Load(),
		"events_processed": eb.stats.EventsProcessed.Load(),
		"events_dropped":   eb.stats.EventsDropped.Load(),
		"consumer_errors":  eb.stats.ConsumerErrors.Load(),
	}
}

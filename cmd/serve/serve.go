// Package serve implements the serve command, running the realtime pond
// monitoring service: MQTT and HTTP telemetry ingest, live state tracking,
// threshold classification, notifications and the dashboard API.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pondpal/pondpal-go/internal/api"
	"github.com/pondpal/pondpal-go/internal/conf"
	"github.com/pondpal/pondpal-go/internal/datastore"
	"github.com/pondpal/pondpal-go/internal/devstate"
	"github.com/pondpal/pondpal-go/internal/events"
	"github.com/pondpal/pondpal-go/internal/ingest"
	"github.com/pondpal/pondpal-go/internal/logging"
	"github.com/pondpal/pondpal-go/internal/mqtt"
	"github.com/pondpal/pondpal-go/internal/notification"
	"github.com/pondpal/pondpal-go/internal/observability"
	"github.com/pondpal/pondpal-go/internal/registry"
	"github.com/pondpal/pondpal-go/internal/rollup"
	"github.com/pondpal/pondpal-go/internal/threshold"
)

const shutdownTimeout = 10 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the realtime pond monitoring service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(settings)
		},
	}

	cmd.PersistentFlags().StringVar(&settings.WebServer.Listen, "listen",
		viper.GetString("webserver.listen"), "HTTP API listen address")

	return cmd
}

// Run wires the services together and blocks until a signal or a fatal
// server error.
func Run(settings *conf.Settings) error {
	logger := logging.ForService("serve")

	if settings.Main.Log.Enabled {
		fileLogger, closeLog, err := logging.NewFileLogger(
			settings.Main.Log.Path, "pondpal", slog.LevelInfo, logging.Rotation{
				MaxSizeMB:  settings.Main.Log.MaxSize,
				MaxBackups: settings.Main.Log.MaxBackups,
				MaxAgeDays: settings.Main.Log.MaxAge,
			})
		if err != nil {
			return fmt.Errorf("opening main log: %w", err)
		}
		defer closeLog() //nolint:errcheck
		fileLogger.Info("service starting", "node", settings.Main.Name)
	}

	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database output enabled")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer ds.Close() //nolint:errcheck

	bus := events.NewBus(events.DefaultConfig())
	defer func() {
		if err := bus.Shutdown(5 * time.Second); err != nil {
			logger.Warn("event bus shutdown", "error", err)
		}
	}()

	tracker := devstate.NewTracker(settings.Realtime.Tracker, bus)
	defer tracker.Stop()

	metrics := observability.NewMetrics()
	thresholds := threshold.NewEngine(ds, bus)
	rollups := rollup.NewAggregator(ds, settings.Realtime.Rollup)

	notifications := notification.NewEngine(settings.Realtime.Notification, ds)
	if err := bus.RegisterConsumer(notifications); err != nil {
		return err
	}

	pipeline := ingest.NewPipeline(ds, tracker, thresholds, metrics)
	pipeline.AutoRegister = true

	reg := registry.NewService(ds, bus, notifications, tracker)

	if settings.Realtime.MQTT.Enabled {
		client := mqtt.NewClient(settings.Realtime.MQTT, pipeline)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := client.Connect(ctx)
		cancel()
		if err != nil {
			return err
		}
		defer client.Disconnect()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	if !settings.WebServer.Enabled {
		logger.Info("web server disabled, running ingest only")
		<-quit
		return nil
	}

	server := api.NewServer(settings.WebServer, ds, reg, tracker,
		thresholds, rollups, notifications, pipeline, metrics)

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	select {
	case <-gctx.Done():
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}
	return g.Wait()
}

// config.go: settings struct and functions to load the PondPal-Go
// configuration through viper.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// LogConfig defines the configuration for a rotated log file
type LogConfig struct {
	Enabled    bool   // true to enable this log
	Path       string // path to the log file
	MaxSize    int    // maximum size in megabytes before rotation
	MaxBackups int    // maximum number of rotated files to keep
	MaxAge     int    // maximum age in days of rotated files to keep
}

// SQLiteSettings contains settings for the SQLite database output
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite
	Path    string // path to the database file
}

// MySQLSettings contains settings for the MySQL database output
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL
	Username string // username for the database
	Password string // password for the database
	Database string // database name
	Host     string // database host
	Port     string // database port
}

// TrackerSettings controls the live device state tracker.
type TrackerSettings struct {
	Debug         bool          // true to enable debug log output
	OfflineAfter  time.Duration // a device with no heartbeat for this long is offline
	TickInterval  time.Duration // how often online state is re-derived absent heartbeats
	ChannelBuffer int           // per-subscriber delivery channel buffer
}

// MQTTSettings contains settings for MQTT telemetry ingest.
type MQTTSettings struct {
	Enabled     bool   // true to enable the MQTT ingest client
	Broker      string // MQTT broker URL, e.g. tcp://localhost:1883
	TopicPrefix string // topic prefix, samples arrive at {prefix}/{deviceID}/telemetry
	ClientID    string // MQTT client ID
	Username    string // MQTT username
	Password    string // MQTT password
}

// NotificationSettings controls the notification engine.
type NotificationSettings struct {
	Debug              bool          // true to enable debug log output
	MaxNotifications   int           // in-memory working set bound
	FeedLimitPerDevice int           // most-recent entries contributed per device
	FeedTotalLimit     int           // global feed bound after merge
	RateLimitWindow    time.Duration // rate limit window
	RateLimitMaxEvents int           // max notifications created per window
}

// RollupSettings controls rollup aggregation.
type RollupSettings struct {
	CacheTTL     time.Duration // how long computed rollups are cached
	CacheCleanup time.Duration // cache janitor interval
}

// WebServerSettings contains settings for the HTTP API server.
type WebServerSettings struct {
	Enabled bool   // true to enable the HTTP API
	Listen  string // listen address and port
	Debug   bool   // true to enable request debug output
}

// RealtimeSettings groups the settings of the realtime service.
type RealtimeSettings struct {
	Tracker      TrackerSettings      // live state tracker settings
	MQTT         MQTTSettings         // telemetry ingest settings
	Notification NotificationSettings // notification engine settings
	Rollup       RollupSettings       // rollup aggregator settings
}

// Settings is the top level configuration struct.
type Settings struct {
	Debug bool // true to enable debug behavior globally

	Main struct {
		Name string    // name of the node running this service
		Log  LogConfig // main log settings
	}

	Output struct {
		SQLite SQLiteSettings // SQLite database settings
		MySQL  MySQLSettings  // MySQL database settings
	}

	Realtime  RealtimeSettings  // realtime service settings
	WebServer WebServerSettings // HTTP API settings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.Mutex
)

// Load reads the configuration into a Settings struct and validates it.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper configures viper's search paths and reads the config file if one
// exists. A missing config file is not an error: defaults and environment
// variables are enough to run.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("pondpal")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml:
// the working directory, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	configDir, err := os.UserConfigDir()
	if err != nil {
		// No home directory, e.g. in a container. The working directory
		// is still searched.
		return paths, nil
	}
	return append(paths, filepath.Join(configDir, "pondpal")), nil
}

// Setting returns the loaded settings instance, or nil before Load().
func Setting() *Settings {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	return settingsInstance
}

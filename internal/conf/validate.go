package conf

import (
	"fmt"
	"strings"
)

// ValidateSettings checks the loaded settings for obvious misconfiguration
// before any service starts. Validation failures abort startup; they are
// never silently corrected.
func ValidateSettings(settings *Settings) error {
	var problems []string

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		problems = append(problems, "no database output enabled, enable output.sqlite or output.mysql")
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		problems = append(problems, "output.sqlite.path must not be empty")
	}
	if settings.Output.MySQL.Enabled {
		if settings.Output.MySQL.Host == "" || settings.Output.MySQL.Port == "" {
			problems = append(problems, "output.mysql.host and output.mysql.port must be set")
		}
		if settings.Output.MySQL.Database == "" {
			problems = append(problems, "output.mysql.database must not be empty")
		}
	}

	tracker := settings.Realtime.Tracker
	if tracker.OfflineAfter <= 0 {
		problems = append(problems, "realtime.tracker.offlineafter must be positive")
	}
	if tracker.TickInterval <= 0 {
		problems = append(problems, "realtime.tracker.tickinterval must be positive")
	}
	if tracker.ChannelBuffer <= 0 {
		problems = append(problems, "realtime.tracker.channelbuffer must be positive")
	}

	notif := settings.Realtime.Notification
	if notif.FeedLimitPerDevice <= 0 || notif.FeedTotalLimit <= 0 {
		problems = append(problems, "realtime.notification feed limits must be positive")
	}
	if notif.MaxNotifications < notif.FeedTotalLimit {
		problems = append(problems, "realtime.notification.maxnotifications must be at least the feed total limit")
	}
	if notif.RateLimitWindow <= 0 || notif.RateLimitMaxEvents <= 0 {
		problems = append(problems, "realtime.notification rate limit settings must be positive")
	}

	if settings.Realtime.MQTT.Enabled && settings.Realtime.MQTT.Broker == "" {
		problems = append(problems, "realtime.mqtt.broker must be set when MQTT is enabled")
	}

	if settings.WebServer.Enabled && settings.WebServer.Listen == "" {
		problems = append(problems, "webserver.listen must be set when the web server is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = "pondpal.db"
	s.Realtime.Tracker = TrackerSettings{
		OfflineAfter:  60 * time.Second,
		TickInterval:  60 * time.Second,
		ChannelBuffer: 64,
	}
	s.Realtime.Notification = NotificationSettings{
		MaxNotifications:   250,
		FeedLimitPerDevice: 20,
		FeedTotalLimit:     50,
		RateLimitWindow:    time.Minute,
		RateLimitMaxEvents: 60,
	}
	s.WebServer.Enabled = true
	s.WebServer.Listen = "0.0.0.0:8080"
	return s
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{
			"no database output",
			func(s *Settings) { s.Output.SQLite.Enabled = false },
			"no database output enabled",
		},
		{
			"sqlite without path",
			func(s *Settings) { s.Output.SQLite.Path = "" },
			"output.sqlite.path",
		},
		{
			"mysql without host",
			func(s *Settings) {
				s.Output.MySQL.Enabled = true
				s.Output.MySQL.Database = "pondpal"
			},
			"output.mysql.host",
		},
		{
			"zero offline window",
			func(s *Settings) { s.Realtime.Tracker.OfflineAfter = 0 },
			"offlineafter",
		},
		{
			"feed larger than working set",
			func(s *Settings) { s.Realtime.Notification.MaxNotifications = 10 },
			"maxnotifications",
		},
		{
			"mqtt enabled without broker",
			func(s *Settings) { s.Realtime.MQTT.Enabled = true },
			"realtime.mqtt.broker",
		},
		{
			"web server without listen address",
			func(s *Settings) { s.WebServer.Listen = "" },
			"webserver.listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "PondPal-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "pondpal.log")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "pondpal.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "pondpal")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "pondpal")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("realtime.tracker.debug", false)
	viper.SetDefault("realtime.tracker.offlineafter", 60*time.Second)
	viper.SetDefault("realtime.tracker.tickinterval", 60*time.Second)
	viper.SetDefault("realtime.tracker.channelbuffer", 64)

	viper.SetDefault("realtime.mqtt.enabled", false)
	viper.SetDefault("realtime.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("realtime.mqtt.topicprefix", "pondpal")
	viper.SetDefault("realtime.mqtt.clientid", "pondpal-go")
	viper.SetDefault("realtime.mqtt.username", "")
	viper.SetDefault("realtime.mqtt.password", "")

	viper.SetDefault("realtime.notification.debug", false)
	viper.SetDefault("realtime.notification.maxnotifications", 250)
	viper.SetDefault("realtime.notification.feedlimitperdevice", 20)
	viper.SetDefault("realtime.notification.feedtotallimit", 50)
	viper.SetDefault("realtime.notification.ratelimitwindow", time.Minute)
	viper.SetDefault("realtime.notification.ratelimitmaxevents", 60)

	viper.SetDefault("realtime.rollup.cachettl", time.Minute)
	viper.SetDefault("realtime.rollup.cachecleanup", 5*time.Minute)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", "0.0.0.0:8080")
	viper.SetDefault("webserver.debug", false)
}

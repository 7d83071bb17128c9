// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "imgur-sans-bullshit")
	viper.SetDefault("main.loglevel", "info")
	viper.SetDefault("main.logfile", "")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "mirror.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "mirror")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "mirror")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("blobstore.backend", "local")
	viper.SetDefault("blobstore.local.path", "blobs/")
	viper.SetDefault("blobstore.sftp.port", "22")
	viper.SetDefault("blobstore.sftp.basepath", "blobs/")

	viper.SetDefault("hosts.imgur.clientid", "")
	viper.SetDefault("hosts.imgur.staleafter", time.Hour)
	viper.SetDefault("hosts.postimages.staleafter", time.Hour)

	viper.SetDefault("hosts.ratelimit.window", 15*time.Minute)
	viper.SetDefault("hosts.ratelimit.maxrequests", 100)
}

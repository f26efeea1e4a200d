/*
Package config loads server configuration from a YAML file with environment
overrides.

PURPOSE:
  One Config struct for the whole binary. Defaults suit local development;
  a config file or STUDIO_* environment variables override them.

SEE ALSO:
  - cmd/server/main.go: the only consumer
*/
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	SQLite struct {
		Path string
	} `mapstructure:"sqlite"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Reconcile struct {
		Enabled  bool
		Interval time.Duration
	} `mapstructure:"reconcile"`
}

// Load reads the config file at path. An empty path or a missing file falls
// back to defaults plus environment overrides (STUDIO_HTTP_ADDR and friends).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("app.env", "dev")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("sqlite.path", "./data/studio.db")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval", time.Hour)

	v.SetEnvPrefix("STUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, err
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

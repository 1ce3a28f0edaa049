package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Application struct {
	Debug             bool          `mapstructure:"debug"`
	LogFormat         string        `mapstructure:"log_format"`
	DataDir           string        `mapstructure:"data_dir"`
	Bucket            string        `mapstructure:"bucket"`
	SegmentSize       int64         `mapstructure:"segment_size"`
	WriteBackInterval time.Duration `mapstructure:"write_back_interval"`
	CompactEvery      int           `mapstructure:"compact_every"`
	PoolSize          int           `mapstructure:"pool_size"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	Home              Home          `mapstructure:"home"`
}

type Home struct {
	NameLength int `mapstructure:"name_length"`
}

var defaults = map[string]interface{}{
	"debug":               false,
	"log_format":          "json",
	"data_dir":            "./data",
	"bucket":              "teleport",
	"segment_size":        8 << 20,
	"write_back_interval": 5 * time.Minute,
	"compact_every":       12,
	"pool_size":           4,
	"metrics_addr":        "",
	"home.name_length":    32,
}

// Load reads teleport.yml from . or ./config/ unless configFile is given,
// then teleport-<env>.yml is merged on top when env is set. Every key can be
// overridden by TELEPORT_<KEY> environment variables.
func Load(v *viper.Viper, configFile string) (Application, error) {
	var application Application
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("teleport")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yml")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return application, errors.WithMessagef(err, "failed to read config %s", configFile)
		}
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config/")
		v.SetConfigName("teleport")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return application, errors.WithMessage(err, "failed to read config")
			}
		}
		if env := v.GetString("env"); env != "" {
			v.SetConfigName("teleport-" + env)
			//local override is optional
			_ = v.MergeInConfig()
		}
	}
	if err := v.Unmarshal(&application); err != nil {
		return application, errors.WithMessage(err, "failed to unmarshal config")
	}
	return application, application.Validate()
}

func (a Application) Validate() error {
	switch {
	case a.Bucket == "":
		return errors.New("bucket can't be empty")
	case a.DataDir == "":
		return errors.New("data_dir can't be empty")
	case a.WriteBackInterval <= 0:
		return errors.Errorf("write_back_interval must be positive, got %s", a.WriteBackInterval)
	case a.PoolSize < 1:
		return errors.Errorf("pool_size must be at least 1, got %d", a.PoolSize)
	case a.CompactEvery < 0:
		return errors.Errorf("compact_every can't be negative, got %d", a.CompactEvery)
	case a.LogFormat != "json" && a.LogFormat != "console":
		return errors.Errorf("unknown log_format %q", a.LogFormat)
	}
	return nil
}

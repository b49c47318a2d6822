// dreamjob/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	TransformBin     string        `mapstructure:"TRANSFORM_BIN"`
	TransformArgs    string        `mapstructure:"TRANSFORM_ARGS"`
	OutputDir        string        `mapstructure:"OUTPUT_DIR"`
	KillGrace        time.Duration `mapstructure:"KILL_GRACE"`
	ExecTimeout      time.Duration `mapstructure:"EXEC_TIMEOUT"`
	MaxInputSize     int64         `mapstructure:"MAX_INPUT_SIZE"`
	ThrottleCPU      float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64         `mapstructure:"THROTTLE_FREEDISK"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
}

// stringToDurationHookFunc parses Go duration strings such as "5s" or "1h30m".
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes ("200MB") into int64 bytes.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string, let the default decoder try.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("TRANSFORM_BIN", "dreamtime-cli")
	vp.SetDefault("TRANSFORM_ARGS", "--input ${INPUT_PHOTO} --output ${OUTPUT_FILE}")
	vp.SetDefault("OUTPUT_DIR", "")
	vp.SetDefault("KILL_GRACE", "5s")
	vp.SetDefault("EXEC_TIMEOUT", "0s")
	vp.SetDefault("MAX_INPUT_SIZE", "50MB")
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", 0)
	vp.SetDefault("THROTTLE_FREEDISK", "50MB")
	vp.SetDefault("LOG_LEVEL", "info")

	vp.SetConfigName("dreamjob_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/dreamjob/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("DREAMJOB")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that converts the value wins.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

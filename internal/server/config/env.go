package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by parseEnv.
// ACCOUNTS_DATABASE_DSN maps to the database_dsn key.
const EnvPrefix = "ACCOUNTS_"

// parseEnv loads dotEnvFile into the process environment (when it exists,
// without overriding variables already set) and overlays every ACCOUNTS_*
// variable onto config. Durations use Go syntax ("15m"), lists are
// comma-separated.
func parseEnv(config *Config, dotEnvFile string) error {
	if dotEnvFile != "" {
		if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", dotEnvFile, err)
		}
	}

	k := koanf.New(".")

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return fmt.Errorf("error loading environment: %w", err)
	}

	err = k.UnmarshalWithConf("", config, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			TagName:          "koanf",
			Result:           config,
		},
	})
	if err != nil {
		return fmt.Errorf("error decoding environment: %w", err)
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/soulprintco/imprint/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the IMPRINT_ prefix.
//
// Config precedence (highest to lowest):
//  1. Environment variables (IMPRINT_API_LISTEN, IMPRINT_LLM_MODEL, etc.)
//  2. config.toml file values
//  3. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	target, err := dotdir.Resolve(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	v.AddConfigPath(target)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: IMPRINT_STORAGE_DRIVER, IMPRINT_LLM_MODEL, etc.
	v.SetEnvPrefix("IMPRINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	defaults := NewDefaultConfig()
	for key, info := range configKeys {
		if val := info.get(defaults); val != "" {
			v.SetDefault(key, val)
		}
	}
}

// FromViper materializes a Config from a viper instance by round-tripping
// every registered key through the dotted-key setters. Unset keys keep their
// defaults.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	for key, info := range configKeys {
		if !v.IsSet(key) {
			continue
		}
		val := v.GetString(key)
		if val == "" {
			continue
		}
		if err := info.set(cfg, val); err != nil {
			return nil, fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return cfg, nil
}

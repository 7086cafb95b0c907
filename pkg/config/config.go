package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/soulprintco/imprint/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	target, err := dotdir.Resolve(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// targetPath is set even when the file does not exist yet so
	// SaveConfig can create it.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .imprint/
// directory. If the file does not exist, returns NewDefaultConfig() so callers
// always receive a fully-populated Config with sane defaults. Fields
// explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	fillString := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fillInt := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}

	fillString(&cfg.Storage.Driver, defaults.Storage.Driver)

	fillString(&cfg.ObjectStore.Provider, defaults.ObjectStore.Provider)
	fillString(&cfg.ObjectStore.LocalRoot, defaults.ObjectStore.LocalRoot)

	fillString(&cfg.LLM.Model, defaults.LLM.Model)
	fillInt(&cfg.LLM.TimeoutSeconds, defaults.LLM.TimeoutSeconds)
	fillInt(&cfg.LLM.MaxRetries, defaults.LLM.MaxRetries)
	fillInt(&cfg.LLM.MaxTokens, defaults.LLM.MaxTokens)

	fillInt(&cfg.Pipeline.Concurrency, defaults.Pipeline.Concurrency)
	fillInt(&cfg.Pipeline.ChunkAttempts, defaults.Pipeline.ChunkAttempts)
	fillInt(&cfg.Pipeline.ChunkTimeoutSeconds, defaults.Pipeline.ChunkTimeoutSeconds)
	fillInt(&cfg.Pipeline.TierSmallTokens, defaults.Pipeline.TierSmallTokens)
	fillInt(&cfg.Pipeline.TierMediumTokens, defaults.Pipeline.TierMediumTokens)
	fillInt(&cfg.Pipeline.TierLargeTokens, defaults.Pipeline.TierLargeTokens)
	fillInt(&cfg.Pipeline.ReduceTokenBudget, defaults.Pipeline.ReduceTokenBudget)
	fillInt(&cfg.Pipeline.ReduceBatchTokens, defaults.Pipeline.ReduceBatchTokens)
	fillInt(&cfg.Pipeline.ReduceMaxDepth, defaults.Pipeline.ReduceMaxDepth)
	fillInt(&cfg.Pipeline.SynthesisRetries, defaults.Pipeline.SynthesisRetries)
	fillInt(&cfg.Pipeline.JobTimeoutMinutes, defaults.Pipeline.JobTimeoutMinutes)
	fillInt(&cfg.Pipeline.Workers, defaults.Pipeline.Workers)
	fillInt(&cfg.Pipeline.QueueSize, defaults.Pipeline.QueueSize)

	fillString(&cfg.Embedding.Model, defaults.Embedding.Model)
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = defaults.Embedding.Dimensions
	}

	fillString(&cfg.VectorStore.Provider, defaults.VectorStore.Provider)
	fillString(&cfg.VectorStore.Target, defaults.VectorStore.Target)
	fillString(&cfg.VectorStore.Collection, defaults.VectorStore.Collection)

	fillString(&cfg.EventStream.Topic, defaults.EventStream.Topic)

	fillString(&cfg.API.Listen, defaults.API.Listen)
}

// SaveConfig persists the configuration to config.toml in the target .imprint/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}

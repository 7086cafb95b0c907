package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent imprint configuration stored as config.toml
// in the .imprint/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
	LLM         LLMConfig         `toml:"llm"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	EventStream EventStreamConfig `toml:"eventstream"`
	API         APIConfig         `toml:"api"`
}

// StorageConfig holds job/chunk/fact store settings.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"` // sqlite | postgres | inmemory
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
	StagingDir  string `toml:"staging_dir,omitempty"`
}

// ObjectStoreConfig holds archive fetch settings.
type ObjectStoreConfig struct {
	Provider  string `toml:"provider,omitempty"` // gcs | local
	Bucket    string `toml:"bucket,omitempty"`
	LocalRoot string `toml:"local_root,omitempty"`
}

// LLMConfig holds completion client settings. The API key is never stored in
// the file; it is read from OPENAI_API_KEY at client construction.
type LLMConfig struct {
	Model          string `toml:"model,omitempty"`
	BaseURL        string `toml:"base_url,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
	MaxRetries     int    `toml:"max_retries,omitempty"`
	MaxTokens      int    `toml:"max_tokens,omitempty"`
}

// PipelineConfig holds the pipeline's tuning knobs. These are empirically
// tuned defaults, not contracts; see NewDefaultConfig for values.
type PipelineConfig struct {
	Concurrency         int `toml:"concurrency,omitempty"`
	ChunkAttempts       int `toml:"chunk_attempts,omitempty"`
	ChunkTimeoutSeconds int `toml:"chunk_timeout_seconds,omitempty"`
	TierSmallTokens     int `toml:"tier_small_tokens,omitempty"`
	TierMediumTokens    int `toml:"tier_medium_tokens,omitempty"`
	TierLargeTokens     int `toml:"tier_large_tokens,omitempty"`
	ReduceTokenBudget   int `toml:"reduce_token_budget,omitempty"`
	ReduceBatchTokens   int `toml:"reduce_batch_tokens,omitempty"`
	ReduceMaxDepth      int `toml:"reduce_max_depth,omitempty"`
	SynthesisRetries    int `toml:"synthesis_retries,omitempty"`
	JobTimeoutMinutes   int `toml:"job_timeout_minutes,omitempty"`
	Workers             int `toml:"workers,omitempty"`
	QueueSize           int `toml:"queue_size,omitempty"`
}

// EmbeddingConfig holds chunk-embedding settings for the optional embed stage.
type EmbeddingConfig struct {
	Enabled    bool   `toml:"enabled,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EventStreamConfig holds job-event publishing settings.
type EventStreamConfig struct {
	Enabled bool     `toml:"enabled,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// APIConfig holds job-status API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(get func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if v := *get(c); v != 0 {
				return strconv.Itoa(v)
			}
			return ""
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer value %q: %w", v, err)
			}
			*get(c) = n
			return nil
		},
	}
}

func stringKey(get func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *get(c) },
		set: func(c *Config, v string) error { *get(c) = v; return nil },
	}
}

func boolKey(get func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*get(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean value %q: %w", v, err)
			}
			*get(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"storage.staging_dir":  stringKey(func(c *Config) *string { return &c.Storage.StagingDir }),

	"object_store.provider":   stringKey(func(c *Config) *string { return &c.ObjectStore.Provider }),
	"object_store.bucket":     stringKey(func(c *Config) *string { return &c.ObjectStore.Bucket }),
	"object_store.local_root": stringKey(func(c *Config) *string { return &c.ObjectStore.LocalRoot }),

	"llm.model":           stringKey(func(c *Config) *string { return &c.LLM.Model }),
	"llm.base_url":        stringKey(func(c *Config) *string { return &c.LLM.BaseURL }),
	"llm.timeout_seconds": intKey(func(c *Config) *int { return &c.LLM.TimeoutSeconds }),
	"llm.max_retries":     intKey(func(c *Config) *int { return &c.LLM.MaxRetries }),
	"llm.max_tokens":      intKey(func(c *Config) *int { return &c.LLM.MaxTokens }),

	"pipeline.concurrency":           intKey(func(c *Config) *int { return &c.Pipeline.Concurrency }),
	"pipeline.chunk_attempts":        intKey(func(c *Config) *int { return &c.Pipeline.ChunkAttempts }),
	"pipeline.chunk_timeout_seconds": intKey(func(c *Config) *int { return &c.Pipeline.ChunkTimeoutSeconds }),
	"pipeline.tier_small_tokens":     intKey(func(c *Config) *int { return &c.Pipeline.TierSmallTokens }),
	"pipeline.tier_medium_tokens":    intKey(func(c *Config) *int { return &c.Pipeline.TierMediumTokens }),
	"pipeline.tier_large_tokens":     intKey(func(c *Config) *int { return &c.Pipeline.TierLargeTokens }),
	"pipeline.reduce_token_budget":   intKey(func(c *Config) *int { return &c.Pipeline.ReduceTokenBudget }),
	"pipeline.reduce_batch_tokens":   intKey(func(c *Config) *int { return &c.Pipeline.ReduceBatchTokens }),
	"pipeline.reduce_max_depth":      intKey(func(c *Config) *int { return &c.Pipeline.ReduceMaxDepth }),
	"pipeline.synthesis_retries":     intKey(func(c *Config) *int { return &c.Pipeline.SynthesisRetries }),
	"pipeline.job_timeout_minutes":   intKey(func(c *Config) *int { return &c.Pipeline.JobTimeoutMinutes }),
	"pipeline.workers":               intKey(func(c *Config) *int { return &c.Pipeline.Workers }),
	"pipeline.queue_size":            intKey(func(c *Config) *int { return &c.Pipeline.QueueSize }),

	"embedding.enabled": boolKey(func(c *Config) *bool { return &c.Embedding.Enabled }),
	"embedding.model":   stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),

	"eventstream.enabled": boolKey(func(c *Config) *bool { return &c.EventStream.Enabled }),
	"eventstream.topic":   stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			var brokers []string
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					brokers = append(brokers, b)
				}
			}
			c.EventStream.Brokers = brokers
			return nil
		},
	},

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),
}

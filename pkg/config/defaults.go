package config

const (
	defaultStorageDriver = "sqlite"

	defaultObjectStoreProvider = "local"
	defaultObjectStoreRoot     = "."

	defaultLLMModel          = "gpt-4o-mini"
	defaultLLMTimeoutSeconds = 120
	defaultLLMMaxRetries     = 3
	defaultLLMMaxTokens      = 1024

	defaultConcurrency         = 5
	defaultChunkAttempts       = 3
	defaultChunkTimeoutSeconds = 60
	defaultTierSmallTokens     = 100
	defaultTierMediumTokens    = 500
	defaultTierLargeTokens     = 2000
	defaultReduceTokenBudget   = 4000
	defaultReduceBatchTokens   = 1500
	defaultReduceMaxDepth      = 3
	defaultSynthesisRetries    = 3
	defaultJobTimeoutMinutes   = 30
	defaultWorkers             = 2
	defaultQueueSize           = 64

	defaultEmbeddingModel      = "text-embedding-3-small"
	defaultEmbeddingDimensions = 768

	defaultVectorProvider   = "qdrant"
	defaultVectorTarget     = "localhost:6334"
	defaultVectorCollection = "imprint_chunks"

	defaultEventTopic = "imprint.jobs"

	defaultAPIListen = ":8082"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		ObjectStore: ObjectStoreConfig{
			Provider:  defaultObjectStoreProvider,
			LocalRoot: defaultObjectStoreRoot,
		},
		LLM: LLMConfig{
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			MaxRetries:     defaultLLMMaxRetries,
			MaxTokens:      defaultLLMMaxTokens,
		},
		Pipeline: PipelineConfig{
			Concurrency:         defaultConcurrency,
			ChunkAttempts:       defaultChunkAttempts,
			ChunkTimeoutSeconds: defaultChunkTimeoutSeconds,
			TierSmallTokens:     defaultTierSmallTokens,
			TierMediumTokens:    defaultTierMediumTokens,
			TierLargeTokens:     defaultTierLargeTokens,
			ReduceTokenBudget:   defaultReduceTokenBudget,
			ReduceBatchTokens:   defaultReduceBatchTokens,
			ReduceMaxDepth:      defaultReduceMaxDepth,
			SynthesisRetries:    defaultSynthesisRetries,
			JobTimeoutMinutes:   defaultJobTimeoutMinutes,
			Workers:             defaultWorkers,
			QueueSize:           defaultQueueSize,
		},
		Embedding: EmbeddingConfig{
			Enabled:    false,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Target:     defaultVectorTarget,
			Collection: defaultVectorCollection,
		},
		EventStream: EventStreamConfig{
			Enabled: false,
			Topic:   defaultEventTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
	}
}

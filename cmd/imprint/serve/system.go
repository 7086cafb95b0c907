package servecmder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/chunker"
	"github.com/soulprintco/imprint/pkg/config"
	"github.com/soulprintco/imprint/pkg/consolidator"
	"github.com/soulprintco/imprint/pkg/embeddings"
	embopenai "github.com/soulprintco/imprint/pkg/embeddings/openai"
	"github.com/soulprintco/imprint/pkg/eventstream"
	"github.com/soulprintco/imprint/pkg/eventstream/kafka"
	"github.com/soulprintco/imprint/pkg/eventstream/nop"
	"github.com/soulprintco/imprint/pkg/extractor"
	"github.com/soulprintco/imprint/pkg/llm"
	llmopenai "github.com/soulprintco/imprint/pkg/llm/openai"
	"github.com/soulprintco/imprint/pkg/objectstore"
	"github.com/soulprintco/imprint/pkg/objectstore/gcs"
	"github.com/soulprintco/imprint/pkg/objectstore/local"
	"github.com/soulprintco/imprint/pkg/pipeline"
	"github.com/soulprintco/imprint/pkg/store"
	"github.com/soulprintco/imprint/pkg/store/inmemory"
	"github.com/soulprintco/imprint/pkg/store/postgres"
	"github.com/soulprintco/imprint/pkg/store/sqlite"
	"github.com/soulprintco/imprint/pkg/synthesizer"
	"github.com/soulprintco/imprint/pkg/vector"
	"github.com/soulprintco/imprint/pkg/vector/qdrant"
)

// System is the wired pipeline: store, workers, and their collaborators.
// Built from a Config by NewSystem and shared by the serve and run commands.
type System struct {
	Store  store.Store
	Runner *pipeline.Runner

	events  eventstream.Publisher
	fetcher objectstore.Fetcher
	vectors vector.Driver
	logger  *zap.Logger
}

// NewSystem builds the full pipeline from configuration.
func NewSystem(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*System, error) {
	storer, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	fetcher, err := newFetcher(ctx, cfg, logger)
	if err != nil {
		storer.Close()
		return nil, err
	}

	stagingDir := cfg.Storage.StagingDir
	if stagingDir == "" {
		stagingDir = filepath.Join(os.TempDir(), "imprint-staging")
	}
	ingestor, err := objectstore.NewIngestor(fetcher, stagingDir, logger)
	if err != nil {
		fetcher.Close()
		storer.Close()
		return nil, fmt.Errorf("creating ingestor: %w", err)
	}

	client, err := llmopenai.New(llmopenai.Config{
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		Timeout:   time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		fetcher.Close()
		storer.Close()
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	ch, err := chunker.New(chunker.Config{
		SmallTokens:  cfg.Pipeline.TierSmallTokens,
		MediumTokens: cfg.Pipeline.TierMediumTokens,
		LargeTokens:  cfg.Pipeline.TierLargeTokens,
	})
	if err != nil {
		fetcher.Close()
		storer.Close()
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	backoff := llm.DefaultBackoff
	backoff.MaxRetries = cfg.Pipeline.ChunkAttempts

	ex, err := extractor.New(client, extractor.Config{
		Concurrency:  cfg.Pipeline.Concurrency,
		ChunkTimeout: time.Duration(cfg.Pipeline.ChunkTimeoutSeconds) * time.Second,
		Backoff:      backoff,
		MaxTokens:    cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		fetcher.Close()
		storer.Close()
		return nil, fmt.Errorf("creating extractor: %w", err)
	}

	red, err := consolidator.NewReducer(client, consolidator.ReducerConfig{
		TokenBudget: cfg.Pipeline.ReduceTokenBudget,
		BatchTokens: cfg.Pipeline.ReduceBatchTokens,
		MaxDepth:    cfg.Pipeline.ReduceMaxDepth,
		MaxTokens:   cfg.LLM.MaxTokens,
		Backoff:     backoff,
	}, logger)
	if err != nil {
		fetcher.Close()
		storer.Close()
		return nil, fmt.Errorf("creating reducer: %w", err)
	}

	syn, err := synthesizer.New(client, synthesizer.Config{
		Retries:   cfg.Pipeline.SynthesisRetries,
		MaxTokens: cfg.LLM.MaxTokens,
		Backoff:   backoff,
	}, logger)
	if err != nil {
		fetcher.Close()
		storer.Close()
		return nil, fmt.Errorf("creating synthesizer: %w", err)
	}

	embedder, vectors, err := newVectorStack(ctx, cfg, logger)
	if err != nil {
		fetcher.Close()
		storer.Close()
		return nil, err
	}

	events, err := newPublisher(cfg, logger)
	if err != nil {
		fetcher.Close()
		storer.Close()
		return nil, err
	}

	engine, err := pipeline.NewEngine(pipeline.Config{
		Store:       storer,
		Ingestor:    ingestor,
		Chunker:     ch,
		Extractor:   ex,
		Reducer:     red,
		Synthesizer: syn,
		Embedder:    embedder,
		Vectors:     vectors,
		Events:      events,
		Logger:      logger,
		JobTimeout:  time.Duration(cfg.Pipeline.JobTimeoutMinutes) * time.Minute,
	})
	if err != nil {
		events.Close()
		fetcher.Close()
		storer.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{
		Engine:     engine,
		Store:      storer,
		NumWorkers: uint(cfg.Pipeline.Workers),
		QueueSize:  uint(cfg.Pipeline.QueueSize),
		Logger:     logger,
	})
	if err != nil {
		events.Close()
		fetcher.Close()
		storer.Close()
		return nil, fmt.Errorf("creating runner: %w", err)
	}

	return &System{
		Store:   storer,
		Runner:  runner,
		events:  events,
		fetcher: fetcher,
		vectors: vectors,
		logger:  logger,
	}, nil
}

// Close drains the job queue and releases every driver.
func (s *System) Close() {
	s.Runner.Close()
	if err := s.events.Close(); err != nil {
		s.logger.Warn("closing event publisher", zap.Error(err))
	}
	s.fetcher.Close()
	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil {
			s.logger.Warn("closing vector store", zap.Error(err))
		}
	}
	if err := s.Store.Close(); err != nil {
		s.logger.Warn("closing store", zap.Error(err))
	}
}

func newStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite", "":
		path := cfg.Storage.SQLitePath
		if path == "" {
			path = "imprint.db"
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.Info("using SQLite storage", zap.String("path", path))
		return db, nil
	case "postgres":
		db, err := postgres.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		logger.Info("using Postgres storage")
		return db, nil
	case "inmemory":
		logger.Info("using in-memory storage")
		return inmemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newFetcher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (objectstore.Fetcher, error) {
	switch cfg.ObjectStore.Provider {
	case "gcs":
		fetcher, err := gcs.NewFetcher(ctx, cfg.ObjectStore.Bucket)
		if err != nil {
			return nil, fmt.Errorf("creating gcs fetcher: %w", err)
		}
		logger.Info("using GCS archive source", zap.String("bucket", cfg.ObjectStore.Bucket))
		return fetcher, nil
	case "local", "":
		fetcher, err := local.NewFetcher(cfg.ObjectStore.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("creating local fetcher: %w", err)
		}
		logger.Info("using local archive source", zap.String("root", cfg.ObjectStore.LocalRoot))
		return fetcher, nil
	default:
		return nil, fmt.Errorf("unknown object store provider %q", cfg.ObjectStore.Provider)
	}
}

func newVectorStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (embeddings.Embedder, vector.Driver, error) {
	if !cfg.Embedding.Enabled {
		return nil, nil, nil
	}

	embedder, err := embopenai.New(embopenai.Config{
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedder: %w", err)
	}

	vectors, err := qdrant.New(ctx, qdrant.Config{
		Target:     cfg.VectorStore.Target,
		Collection: cfg.VectorStore.Collection,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to vector store: %w", err)
	}

	logger.Info("chunk embedding enabled",
		zap.String("model", cfg.Embedding.Model),
		zap.String("collection", cfg.VectorStore.Collection),
	)
	return embedder, vectors, nil
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (eventstream.Publisher, error) {
	if !cfg.EventStream.Enabled {
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: cfg.EventStream.Brokers,
		Topic:   cfg.EventStream.Topic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	logger.Info("publishing job events",
		zap.Strings("brokers", cfg.EventStream.Brokers),
		zap.String("topic", cfg.EventStream.Topic),
	)
	return pub, nil
}

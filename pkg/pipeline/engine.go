// Package pipeline orchestrates the archive-to-memory run: a fixed stage
// sequence with per-stage checkpoints persisted to the store, so a failed
// job retries from its last completed stage instead of from scratch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/chunker"
	"github.com/soulprintco/imprint/pkg/consolidator"
	"github.com/soulprintco/imprint/pkg/embeddings"
	"github.com/soulprintco/imprint/pkg/eventstream"
	"github.com/soulprintco/imprint/pkg/extractor"
	"github.com/soulprintco/imprint/pkg/objectstore"
	"github.com/soulprintco/imprint/pkg/store"
	"github.com/soulprintco/imprint/pkg/synthesizer"
	"github.com/soulprintco/imprint/pkg/utils"
	"github.com/soulprintco/imprint/pkg/vector"
)

// maxJobErrorBytes caps the error string persisted on a failed job.
const maxJobErrorBytes = 512

// Config wires the engine's collaborators. Embedder and Vectors are
// optional; when either is nil the embed step is skipped.
type Config struct {
	Store       store.Store
	Ingestor    *objectstore.Ingestor
	Chunker     *chunker.Chunker
	Extractor   *extractor.Extractor
	Reducer     *consolidator.Reducer
	Synthesizer *synthesizer.Synthesizer
	Embedder    embeddings.Embedder
	Vectors     vector.Driver
	Events      eventstream.Publisher
	Logger      *zap.Logger

	// JobTimeout bounds one job's wall-clock run, zero means no timeout.
	JobTimeout time.Duration
}

// stage is one pipeline step: a checkpoint probe consulted on retries and
// the work itself. run returns the stage's checkpoint already persisted.
type stage struct {
	name   store.Stage
	isDone func(ctx context.Context, job *store.Job) (bool, error)
	run    func(ctx context.Context, job *store.Job) error
}

type Engine struct {
	cfg    Config
	stages []stage
	logger *zap.Logger
}

func NewEngine(cfg Config) (*Engine, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case cfg.Ingestor == nil:
		return nil, errors.New("pipeline: ingestor is required")
	case cfg.Chunker == nil:
		return nil, errors.New("pipeline: chunker is required")
	case cfg.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case cfg.Reducer == nil:
		return nil, errors.New("pipeline: reducer is required")
	case cfg.Synthesizer == nil:
		return nil, errors.New("pipeline: synthesizer is required")
	case cfg.Events == nil:
		return nil, errors.New("pipeline: event publisher is required")
	case cfg.Logger == nil:
		return nil, errors.New("pipeline: logger is required")
	}

	e := &Engine{cfg: cfg, logger: cfg.Logger}
	e.stages = []stage{
		{name: store.StageIngest, isDone: e.ingestDone, run: e.runIngest},
		{name: store.StageReconstruct, isDone: e.artifactDone(store.StageReconstruct), run: e.runReconstruct},
		{name: store.StageChunk, isDone: e.artifactDone(store.StageChunk), run: e.runChunk},
		{name: store.StageExtract, isDone: e.artifactDone(store.StageExtract), run: e.runExtract},
		{name: store.StageConsolidate, isDone: e.artifactDone(store.StageConsolidate), run: e.runConsolidate},
		{name: store.StageSynthesize, isDone: e.artifactDone(store.StageSynthesize), run: e.runSynthesize},
	}
	return e, nil
}

// Run executes a job to completion or failure. Completed stages are skipped
// via their checkpoint probes, so running a failed job again resumes where
// it stopped.
func (e *Engine) Run(ctx context.Context, jobID string) error {
	job, err := e.cfg.Store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == store.StatusComplete {
		return nil
	}

	if e.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.JobTimeout)
		defer cancel()
	}

	now := time.Now().UTC()
	job.Status = store.StatusProcessing
	job.Error = ""
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	if err := e.transition(ctx, job); err != nil {
		return err
	}

	log := e.logger.With(zap.String("job_id", job.ID), zap.String("user_id", job.UserID))

	for _, st := range e.stages {
		done, err := st.isDone(ctx, job)
		if err != nil {
			return e.fail(ctx, job, fmt.Errorf("probing stage %s: %w", st.name, err))
		}
		if done {
			log.Debug("stage checkpoint present, skipping", zap.String("stage", string(st.name)))
		} else {
			job.Stage = st.name
			if err := e.transition(ctx, job); err != nil {
				return err
			}

			log.Info("stage started", zap.String("stage", string(st.name)))
			start := time.Now()
			if err := st.run(ctx, job); err != nil {
				return e.fail(ctx, job, fmt.Errorf("stage %s: %w", st.name, err))
			}
			log.Info("stage complete",
				zap.String("stage", string(st.name)),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
	}

	completed := time.Now().UTC()
	job.Stage = store.StageDone
	job.Status = store.StatusComplete
	job.CompletedAt = &completed
	if err := e.transition(ctx, job); err != nil {
		return err
	}

	usage, calls := e.cfg.Extractor.Usage()
	log.Info("job complete",
		zap.Int("llm_calls", calls),
		zap.Int("llm_tokens", usage.TotalTokens),
	)
	return nil
}

// fail marks the job failed with a truncated error, keeping every persisted
// artifact in place for a later retry.
func (e *Engine) fail(ctx context.Context, job *store.Job, cause error) error {
	completed := time.Now().UTC()
	job.Status = store.StatusFailed
	job.Error = utils.Truncate(cause.Error(), maxJobErrorBytes)
	job.CompletedAt = &completed

	// Persist with a fresh context: the job context may be the reason we
	// are here.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.transition(pctx, job); err != nil {
		e.logger.Error("persisting failed job state", zap.String("job_id", job.ID), zap.Error(err))
	}
	return cause
}

// transition persists the job and publishes the status event. Publish
// failures are logged, never fatal.
func (e *Engine) transition(ctx context.Context, job *store.Job) error {
	if err := e.cfg.Store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("persisting job transition: %w", err)
	}

	event := eventstream.NewJobEvent(eventstream.EventTypeJobStatus, job)
	if err := e.cfg.Events.PublishJob(ctx, event); err != nil {
		e.logger.Warn("publishing job event",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
	return nil
}

// artifactDone probes a stage checkpoint blob.
func (e *Engine) artifactDone(s store.Stage) func(context.Context, *store.Job) (bool, error) {
	return func(ctx context.Context, job *store.Job) (bool, error) {
		_, err := e.cfg.Store.GetArtifact(ctx, job.ID, s)
		if err != nil {
			if store.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
}

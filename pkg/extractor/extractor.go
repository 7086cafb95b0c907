package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/chunker"
	"github.com/soulprintco/imprint/pkg/llm"
)

// Config tunes the extraction fan-out.
type Config struct {
	// Concurrency bounds simultaneous model calls.
	Concurrency int

	// ChunkTimeout bounds one chunk's call including its retries.
	ChunkTimeout time.Duration

	// Backoff paces retries after rate-limit rejections.
	Backoff llm.BackoffPolicy

	// MaxTokens caps each completion.
	MaxTokens int
}

type Extractor struct {
	client  llm.Client
	schema  *llm.ResponseSchema
	cfg     Config
	logger  *zap.Logger
	tracker *llm.CostTracker
}

func New(client llm.Client, cfg Config, logger *zap.Logger) (*Extractor, error) {
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive")
	}

	schema, err := llm.SchemaFor[FactSet]("fact_set")
	if err != nil {
		return nil, fmt.Errorf("building fact schema: %w", err)
	}

	return &Extractor{
		client:  client,
		schema:  schema,
		cfg:     cfg,
		logger:  logger,
		tracker: llm.NewCostTracker(),
	}, nil
}

// Usage returns the accumulated token usage and call count.
func (e *Extractor) Usage() (llm.Usage, int) {
	return e.tracker.Total()
}

// ExtractAll runs extraction over every chunk with at most cfg.Concurrency
// calls in flight. Results come back in chunk order. A failed chunk yields
// an empty fact set and a logged error; only context cancellation fails the
// batch.
func (e *Extractor) ExtractAll(ctx context.Context, chunks []chunker.Chunk) ([]ChunkFacts, error) {
	results := make([]ChunkFacts, len(chunks))
	sem := make(chan struct{}, e.cfg.Concurrency)

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, chunk chunker.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.extractOne(ctx, chunk)
		}(i, chunk)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// extractOne runs one chunk's extraction, retrying rate limits only. Any
// terminal failure degrades to an empty fact set.
func (e *Extractor) extractOne(ctx context.Context, chunk chunker.Chunk) ChunkFacts {
	out := ChunkFacts{ChunkID: chunk.ID}

	cctx := ctx
	if e.cfg.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, e.cfg.ChunkTimeout)
		defer cancel()
	}

	req := llm.CompletionRequest{
		System:    extractionSystemPrompt,
		Prompt:    extractionPrompt(chunk),
		MaxTokens: e.cfg.MaxTokens,
		Schema:    e.schema,
	}

	result, err := llm.CompleteWithRetry(cctx, e.client, req, e.cfg.Backoff, llm.IsRateLimited)
	if err != nil {
		e.logger.Error("chunk extraction failed",
			zap.String("chunk_id", chunk.ID),
			zap.Error(err),
		)
		return out
	}
	e.tracker.Add(result.Usage)

	facts, err := parseFactSet(result.Text)
	if err != nil {
		e.logger.Error("chunk extraction returned unparseable output",
			zap.String("chunk_id", chunk.ID),
			zap.Error(err),
		)
		return out
	}

	out.Facts = facts
	return out
}

// parseFactSet decodes model output. Models occasionally wrap JSON in prose
// or code fences, so a failed strict parse falls back to the outermost
// brace-delimited substring.
func parseFactSet(text string) (FactSet, error) {
	var facts FactSet
	if err := json.Unmarshal([]byte(text), &facts); err == nil {
		return facts, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return FactSet{}, fmt.Errorf("no JSON object in output")
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), &facts); err != nil {
		return FactSet{}, fmt.Errorf("decoding fact set: %w", err)
	}
	return facts, nil
}

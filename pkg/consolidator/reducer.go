package consolidator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/chunker"
	"github.com/soulprintco/imprint/pkg/extractor"
	"github.com/soulprintco/imprint/pkg/llm"
)

// ReductionError reports a fact set that could not be compacted under the
// token budget: either the depth limit was hit or a pass failed to shrink
// the set (a fixed point, which further passes cannot escape).
type ReductionError struct {
	Depth  int
	Tokens int
	Budget int
	Reason string
}

func (e *ReductionError) Error() string {
	return fmt.Sprintf("reduction failed at depth %d (%d tokens over budget %d): %s",
		e.Depth, e.Tokens, e.Budget, e.Reason)
}

const reduceSystemPrompt = `You compact lists of facts about a person. Merge overlapping facts, drop redundancy, and keep the most durable and specific information. Every output fact must be one self-contained sentence. Return strict JSON matching the provided schema. The output list must be shorter than the input list.`

// compactedFacts is the schema the reducer asks the model for.
type compactedFacts struct {
	Facts []string `json:"facts"`
}

// ReducerConfig tunes hierarchical reduction.
type ReducerConfig struct {
	// TokenBudget is the target size for the final fact set.
	TokenBudget int

	// BatchTokens bounds how many fact tokens go into one compaction call.
	BatchTokens int

	// MaxDepth bounds recursive passes over the set.
	MaxDepth int

	// MaxTokens caps each completion.
	MaxTokens int

	// Backoff paces retries on transient model failures.
	Backoff llm.BackoffPolicy
}

type Reducer struct {
	client  llm.Client
	cfg     ReducerConfig
	schema  *llm.ResponseSchema
	logger  *zap.Logger
	tracker *llm.CostTracker
}

func NewReducer(client llm.Client, cfg ReducerConfig, logger *zap.Logger) (*Reducer, error) {
	if cfg.TokenBudget <= 0 || cfg.BatchTokens <= 0 || cfg.MaxDepth <= 0 {
		return nil, fmt.Errorf("token budget, batch tokens, and max depth must be positive")
	}

	schema, err := llm.SchemaFor[compactedFacts]("compacted_facts")
	if err != nil {
		return nil, fmt.Errorf("building compaction schema: %w", err)
	}

	return &Reducer{
		client:  client,
		cfg:     cfg,
		schema:  schema,
		logger:  logger,
		tracker: llm.NewCostTracker(),
	}, nil
}

// Usage returns the accumulated token usage and call count.
func (r *Reducer) Usage() (llm.Usage, int) {
	return r.tracker.Total()
}

// Reduce compacts facts until they fit the token budget. Each pass batches
// every over-budget category and asks the model to merge within each batch.
// A pass that fails to shrink the set, or exhausting MaxDepth, returns a
// ReductionError.
func (r *Reducer) Reduce(ctx context.Context, facts extractor.FactSet) (extractor.FactSet, error) {
	current := facts

	for depth := 1; ; depth++ {
		tokens := FactTokens(current)
		if tokens <= r.cfg.TokenBudget {
			return current, nil
		}
		if depth > r.cfg.MaxDepth {
			return extractor.FactSet{}, &ReductionError{
				Depth:  r.cfg.MaxDepth,
				Tokens: tokens,
				Budget: r.cfg.TokenBudget,
				Reason: "max reduction depth exhausted",
			}
		}

		reduced, err := r.reducePass(ctx, current)
		if err != nil {
			return extractor.FactSet{}, err
		}

		newTokens := FactTokens(reduced)
		if newTokens >= tokens {
			return extractor.FactSet{}, &ReductionError{
				Depth:  depth,
				Tokens: newTokens,
				Budget: r.cfg.TokenBudget,
				Reason: "reduction pass did not shrink the fact set",
			}
		}

		r.logger.Debug("reduction pass complete",
			zap.Int("depth", depth),
			zap.Int("tokens_before", tokens),
			zap.Int("tokens_after", newTokens),
		)
		current = reduced
	}
}

func (r *Reducer) reducePass(ctx context.Context, facts extractor.FactSet) (extractor.FactSet, error) {
	var out extractor.FactSet
	for _, category := range extractor.Categories {
		compacted, err := r.reduceCategory(ctx, category, facts.ByCategory(category))
		if err != nil {
			return extractor.FactSet{}, err
		}
		out.SetCategory(category, compacted)
	}
	return out, nil
}

// reduceCategory compacts one category batch by batch. Single-fact batches
// pass through untouched; there is nothing for the model to merge.
func (r *Reducer) reduceCategory(ctx context.Context, category string, facts []string) ([]string, error) {
	if len(facts) <= 1 {
		return facts, nil
	}

	var out []string
	seen := map[string]bool{}
	add := func(fact string) {
		fact = strings.TrimSpace(fact)
		if fact == "" || seen[fact] {
			return
		}
		seen[fact] = true
		out = append(out, fact)
	}

	for _, batch := range batchFacts(facts, r.cfg.BatchTokens) {
		if len(batch) == 1 {
			add(batch[0])
			continue
		}

		compacted, err := r.compactBatch(ctx, category, batch)
		if err != nil {
			return nil, err
		}
		for _, fact := range compacted {
			add(fact)
		}
	}
	return out, nil
}

func (r *Reducer) compactBatch(ctx context.Context, category string, batch []string) ([]string, error) {
	prompt := fmt.Sprintf("Category: %s\n\nFacts:\n- %s", category, strings.Join(batch, "\n- "))

	result, err := llm.CompleteWithRetry(ctx, r.client, llm.CompletionRequest{
		System:    reduceSystemPrompt,
		Prompt:    prompt,
		MaxTokens: r.cfg.MaxTokens,
		Schema:    r.schema,
	}, r.cfg.Backoff, llm.IsTransient)
	if err != nil {
		return nil, fmt.Errorf("compacting %s facts: %w", category, err)
	}
	r.tracker.Add(result.Usage)

	var compacted compactedFacts
	if err := json.Unmarshal([]byte(result.Text), &compacted); err != nil {
		return nil, fmt.Errorf("decoding compacted %s facts: %w", category, err)
	}
	return compacted.Facts, nil
}

// batchFacts groups facts into runs whose estimated tokens stay under limit.
// An oversize fact forms its own batch.
func batchFacts(facts []string, limit int) [][]string {
	var (
		batches [][]string
		current []string
		tokens  int
	)

	for _, fact := range facts {
		cost := chunker.EstimateTokens(fact) + 1
		if len(current) > 0 && tokens+cost > limit {
			batches = append(batches, current)
			current = nil
			tokens = 0
		}
		current = append(current, fact)
		tokens += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

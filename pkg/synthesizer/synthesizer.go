package synthesizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/extractor"
	"github.com/soulprintco/imprint/pkg/llm"
)

// SynthesisError reports that every regeneration attempt produced an invalid
// document.
type SynthesisError struct {
	Attempts int
	Reason   string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed after %d attempts: %s", e.Attempts, e.Reason)
}

const synthesisSystemPrompt = `You write a memory profile of a person from a list of established facts about them. Produce one cohesive narrative paragraph per section, written in third person, grounded only in the provided facts. Never pad a section with filler like "not enough data"; when facts for a section are thin, write the little that is supported. Return strict JSON matching the provided schema.`

// Config tunes synthesis.
type Config struct {
	// Retries is the total number of generation attempts before giving up.
	Retries int

	// MaxTokens caps each completion.
	MaxTokens int

	// Backoff paces retries on transient model failures within one attempt.
	Backoff llm.BackoffPolicy
}

type Synthesizer struct {
	client  llm.Client
	cfg     Config
	schema  *llm.ResponseSchema
	logger  *zap.Logger
	tracker *llm.CostTracker
}

func New(client llm.Client, cfg Config, logger *zap.Logger) (*Synthesizer, error) {
	if cfg.Retries <= 0 {
		return nil, fmt.Errorf("retries must be positive")
	}

	schema, err := llm.SchemaFor[Sections]("memory_sections")
	if err != nil {
		return nil, fmt.Errorf("building sections schema: %w", err)
	}

	return &Synthesizer{
		client:  client,
		cfg:     cfg,
		schema:  schema,
		logger:  logger,
		tracker: llm.NewCostTracker(),
	}, nil
}

// Usage returns the accumulated token usage and call count.
func (s *Synthesizer) Usage() (llm.Usage, int) {
	return s.tracker.Total()
}

// Synthesize generates the memory document from consolidated facts,
// regenerating up to cfg.Retries times when validation rejects the output.
// Model failures propagate immediately; only validation failures consume
// attempts.
func (s *Synthesizer) Synthesize(ctx context.Context, facts extractor.FactSet) (*MemoryDocument, error) {
	prompt := synthesisPrompt(facts)
	lastReason := ""

	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		result, err := llm.CompleteWithRetry(ctx, s.client, llm.CompletionRequest{
			System:    synthesisSystemPrompt,
			Prompt:    prompt,
			MaxTokens: s.cfg.MaxTokens,
			Schema:    s.schema,
		}, s.cfg.Backoff, llm.IsTransient)
		if err != nil {
			return nil, fmt.Errorf("generating memory document: %w", err)
		}
		s.tracker.Add(result.Usage)

		var sections Sections
		if err := json.Unmarshal([]byte(result.Text), &sections); err != nil {
			lastReason = fmt.Sprintf("unparseable output: %v", err)
			s.logger.Warn("synthesis attempt rejected",
				zap.Int("attempt", attempt),
				zap.String("reason", lastReason),
			)
			continue
		}

		if reason := validate(sections); reason != "" {
			lastReason = reason
			s.logger.Warn("synthesis attempt rejected",
				zap.Int("attempt", attempt),
				zap.String("reason", reason),
			)
			continue
		}

		return &MemoryDocument{
			Sections:    sections,
			GeneratedAt: time.Now().UTC(),
			Valid:       true,
		}, nil
	}

	return nil, &SynthesisError{Attempts: s.cfg.Retries, Reason: lastReason}
}

func synthesisPrompt(facts extractor.FactSet) string {
	var b strings.Builder
	b.WriteString("Established facts about the person:\n")
	for _, category := range extractor.Categories {
		b.WriteString(fmt.Sprintf("\n%s:\n", category))
		list := facts.ByCategory(category)
		if len(list) == 0 {
			b.WriteString("- (none recorded)\n")
			continue
		}
		for _, fact := range list {
			b.WriteString("- " + fact + "\n")
		}
	}
	return b.String()
}

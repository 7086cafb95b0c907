// Package chunker splits linearized conversations into tiered chunks sized
// for fact-extraction prompts. Chunk boundaries always fall between messages:
// a message is never split, so an oversize message becomes a chunk of its own.
package chunker

import (
	"fmt"
	"strings"

	"github.com/soulprintco/imprint/pkg/archive"
)

// Tier names a chunk granularity. Each tier re-chunks the same conversation
// at a different token target so extraction sees both local detail and
// broader context.
type Tier string

const (
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// Tiers lists all tiers in ascending size order.
var Tiers = []Tier{TierSmall, TierMedium, TierLarge}

// Chunk is a contiguous run of messages from one conversation at one tier.
// IDs are deterministic ("convID/tier/index") so persisting chunks is
// idempotent across job retries.
type Chunk struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Tier           Tier   `json:"tier"`
	Text           string `json:"text"`
	TokenEstimate  int    `json:"token_estimate"`
	StartIndex     int    `json:"start_index"`
	EndIndex       int    `json:"end_index"`
}

// EstimateTokens approximates token count as len/4. Cheap and close enough
// for sizing prompts; exact tokenization is not worth a tokenizer dependency
// here.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// Config carries the token targets per tier.
type Config struct {
	SmallTokens  int
	MediumTokens int
	LargeTokens  int
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) (*Chunker, error) {
	if cfg.SmallTokens <= 0 || cfg.MediumTokens <= 0 || cfg.LargeTokens <= 0 {
		return nil, fmt.Errorf("all tier token targets must be positive")
	}
	if cfg.SmallTokens > cfg.MediumTokens || cfg.MediumTokens > cfg.LargeTokens {
		return nil, fmt.Errorf("tier token targets must be ascending")
	}
	return &Chunker{cfg: cfg}, nil
}

func (c *Chunker) target(tier Tier) (int, error) {
	switch tier {
	case TierSmall:
		return c.cfg.SmallTokens, nil
	case TierMedium:
		return c.cfg.MediumTokens, nil
	case TierLarge:
		return c.cfg.LargeTokens, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", tier)
	}
}

// Split chunks the conversation at every tier.
func (c *Chunker) Split(conversationID string, msgs []archive.Message) ([]Chunk, error) {
	var out []Chunk
	for _, tier := range Tiers {
		chunks, err := c.SplitTier(conversationID, msgs, tier)
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// SplitTier chunks the conversation at one tier. Messages accumulate until
// the next one would push the chunk past the tier target; a single message
// over the target still forms a complete chunk.
func (c *Chunker) SplitTier(conversationID string, msgs []archive.Message, tier Tier) ([]Chunk, error) {
	target, err := c.target(tier)
	if err != nil {
		return nil, err
	}

	var (
		out     []Chunk
		pending []string
		tokens  int
		start   int
	)

	flush := func(end int) {
		if len(pending) == 0 {
			return
		}
		text := strings.Join(pending, "\n\n")
		out = append(out, Chunk{
			ID:             fmt.Sprintf("%s/%s/%d", conversationID, tier, len(out)),
			ConversationID: conversationID,
			Tier:           tier,
			Text:           text,
			TokenEstimate:  EstimateTokens(text),
			StartIndex:     start,
			EndIndex:       end,
		})
		pending = nil
		tokens = 0
	}

	for i, m := range msgs {
		rendered := Render(m)
		cost := EstimateTokens(rendered)

		if len(pending) > 0 && tokens+cost > target {
			flush(i)
			start = i
		}
		if len(pending) == 0 {
			start = i
		}
		pending = append(pending, rendered)
		tokens += cost
	}
	flush(len(msgs))

	return out, nil
}

// Render formats one message the way it appears inside a chunk.
func Render(m archive.Message) string {
	role := m.Role
	if role == "" {
		role = "unknown"
	}
	return role + ": " + m.Text()
}

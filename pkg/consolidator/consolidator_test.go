package consolidator_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/consolidator"
	"github.com/soulprintco/imprint/pkg/extractor"
	"github.com/soulprintco/imprint/pkg/llm"
	"github.com/soulprintco/imprint/pkg/llm/llmtest"
)

func TestConsolidator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Consolidator Suite")
}

var _ = Describe("Consolidate", func() {
	It("unions categories and drops exact duplicates, first seen wins", func() {
		sets := []extractor.ChunkFacts{
			{ChunkID: "a", Facts: extractor.FactSet{
				Preferences: []string{"prefers dark roast", "codes at night"},
				Decisions:   []string{"moved to Lisbon"},
			}},
			{ChunkID: "b", Facts: extractor.FactSet{
				Preferences: []string{"prefers dark roast ", "runs daily"},
				Beliefs:     []string{"tests are documentation"},
			}},
		}

		out := consolidator.Consolidate(sets)
		Expect(out.Preferences).To(Equal([]string{"prefers dark roast", "codes at night", "runs daily"}))
		Expect(out.Decisions).To(Equal([]string{"moved to Lisbon"}))
		Expect(out.Beliefs).To(Equal([]string{"tests are documentation"}))
		Expect(out.Projects).To(BeEmpty())
	})

	It("drops blank facts", func() {
		sets := []extractor.ChunkFacts{
			{Facts: extractor.FactSet{Projects: []string{"  ", "ships imprint"}}},
		}
		Expect(consolidator.Consolidate(sets).Projects).To(Equal([]string{"ships imprint"}))
	})

	It("handles empty input", func() {
		Expect(consolidator.Consolidate(nil).Empty()).To(BeTrue())
	})
})

var _ = Describe("Reducer", func() {
	var ctx context.Context

	cfg := consolidator.ReducerConfig{
		TokenBudget: 50,
		BatchTokens: 30,
		MaxDepth:    3,
		MaxTokens:   256,
		Backoff:     llm.BackoffPolicy{Min: time.Millisecond, Max: 2 * time.Millisecond, MaxRetries: 1},
	}

	// wideFacts builds a fact set well over the 50-token budget.
	wideFacts := func() extractor.FactSet {
		var f extractor.FactSet
		for i := 0; i < 10; i++ {
			f.Beliefs = append(f.Beliefs, fmt.Sprintf("belief number %d with some padding text around it", i))
		}
		return f
	}

	// halvingClient compacts each batch down to its first fact.
	halvingClient := func() *llmtest.Scripted {
		return &llmtest.Scripted{
			RespondFn: func(req llm.CompletionRequest) (*llm.CompletionResult, error) {
				lines := []string{}
				for _, line := range strings.Split(req.Prompt, "\n") {
					if strings.HasPrefix(line, "- ") {
						lines = append(lines, strings.TrimPrefix(line, "- "))
					}
				}
				out, _ := json.Marshal(map[string][]string{"facts": lines[:1]})
				return &llm.CompletionResult{Text: string(out)}, nil
			},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("returns under-budget sets untouched without model calls", func() {
		client := &llmtest.Scripted{}
		r, err := consolidator.NewReducer(client, cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		small := extractor.FactSet{Preferences: []string{"short"}}
		out, err := r.Reduce(ctx, small)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(small))
		Expect(client.Calls()).To(Equal(0))
	})

	It("compacts an oversized set under the budget", func() {
		client := halvingClient()
		r, err := consolidator.NewReducer(client, cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		out, err := r.Reduce(ctx, wideFacts())
		Expect(err).NotTo(HaveOccurred())
		Expect(consolidator.FactTokens(out)).To(BeNumerically("<=", cfg.TokenBudget))
		Expect(out.Beliefs).NotTo(BeEmpty())
		Expect(client.Calls()).To(BeNumerically(">", 0))
	})

	It("returns ReductionError when a pass does not shrink the set", func() {
		// Echo every batch back unchanged: a fixed point.
		client := &llmtest.Scripted{
			RespondFn: func(req llm.CompletionRequest) (*llm.CompletionResult, error) {
				lines := []string{}
				for _, line := range strings.Split(req.Prompt, "\n") {
					if strings.HasPrefix(line, "- ") {
						lines = append(lines, strings.TrimPrefix(line, "- "))
					}
				}
				out, _ := json.Marshal(map[string][]string{"facts": lines})
				return &llm.CompletionResult{Text: string(out)}, nil
			},
		}

		r, err := consolidator.NewReducer(client, cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Reduce(ctx, wideFacts())
		var re *consolidator.ReductionError
		Expect(err).To(BeAssignableToTypeOf(re))
		Expect(err.Error()).To(ContainSubstring("did not shrink"))
	})

	It("returns ReductionError when depth runs out before the budget is met", func() {
		// Shrink by exactly one fact per pass: progress, but too slow for
		// MaxDepth passes to reach the budget.
		client := &llmtest.Scripted{
			RespondFn: func(req llm.CompletionRequest) (*llm.CompletionResult, error) {
				lines := []string{}
				for _, line := range strings.Split(req.Prompt, "\n") {
					if strings.HasPrefix(line, "- ") {
						lines = append(lines, strings.TrimPrefix(line, "- "))
					}
				}
				if len(lines) > 1 {
					lines = lines[:len(lines)-1]
				}
				out, _ := json.Marshal(map[string][]string{"facts": lines})
				return &llm.CompletionResult{Text: string(out)}, nil
			},
		}

		shallow := cfg
		shallow.MaxDepth = 2
		shallow.TokenBudget = 5
		r, err := consolidator.NewReducer(client, shallow, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Reduce(ctx, wideFacts())
		var re *consolidator.ReductionError
		Expect(err).To(BeAssignableToTypeOf(re))
		Expect(err.Error()).To(ContainSubstring("depth"))
	})

	It("propagates terminal model failures", func() {
		client := &llmtest.Scripted{
			RespondFn: func(llm.CompletionRequest) (*llm.CompletionResult, error) {
				return nil, &llm.APIError{StatusCode: 400, Message: "nope"}
			},
		}

		r, err := consolidator.NewReducer(client, cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Reduce(ctx, wideFacts())
		Expect(err).To(HaveOccurred())
		var re *consolidator.ReductionError
		Expect(err).NotTo(BeAssignableToTypeOf(re))
	})
})

package llm_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/soulprintco/imprint/pkg/llm"
	"github.com/soulprintco/imprint/pkg/llm/llmtest"
)

func TestLLM(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LLM Suite")
}

var _ = Describe("error classification", func() {
	It("treats only status 429 as rate limited", func() {
		Expect(llm.IsRateLimited(&llm.APIError{StatusCode: 429})).To(BeTrue())
		Expect(llm.IsRateLimited(&llm.APIError{StatusCode: 500})).To(BeFalse())
		Expect(llm.IsRateLimited(errors.New("plain"))).To(BeFalse())
	})

	It("treats 408, 429, and 5xx as transient", func() {
		Expect(llm.IsTransient(&llm.APIError{StatusCode: 408})).To(BeTrue())
		Expect(llm.IsTransient(&llm.APIError{StatusCode: 429})).To(BeTrue())
		Expect(llm.IsTransient(&llm.APIError{StatusCode: 503})).To(BeTrue())
		Expect(llm.IsTransient(&llm.APIError{StatusCode: 400})).To(BeFalse())
		Expect(llm.IsTransient(errors.New("plain"))).To(BeFalse())
	})

	It("classifies wrapped errors", func() {
		wrapped := fmt.Errorf("calling model: %w", &llm.APIError{StatusCode: 429})
		Expect(llm.IsRateLimited(wrapped)).To(BeTrue())
		Expect(llm.IsTransient(wrapped)).To(BeTrue())
	})
})

var _ = Describe("BackoffPolicy", func() {
	policy := llm.BackoffPolicy{Min: time.Second, Max: 8 * time.Second, MaxRetries: 3}

	It("doubles per attempt within jitter bounds", func() {
		for attempt, base := range map[int]time.Duration{
			1: time.Second,
			2: 2 * time.Second,
			3: 4 * time.Second,
		} {
			d := policy.Delay(attempt)
			Expect(d).To(BeNumerically(">=", time.Duration(float64(base)*0.8)))
			Expect(d).To(BeNumerically("<=", time.Duration(float64(base)*1.2)))
		}
	})

	It("caps at Max", func() {
		d := policy.Delay(10)
		Expect(d).To(BeNumerically("<=", time.Duration(float64(8*time.Second)*1.2)))
	})
})

var _ = Describe("CompleteWithRetry", func() {
	var ctx context.Context

	fast := llm.BackoffPolicy{Min: time.Millisecond, Max: 2 * time.Millisecond, MaxRetries: 3}

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("returns the first success without retrying", func() {
		client := &llmtest.Scripted{
			RespondFn: func(llm.CompletionRequest) (*llm.CompletionResult, error) {
				return &llm.CompletionResult{Text: "ok"}, nil
			},
		}

		result, err := llm.CompleteWithRetry(ctx, client, llm.CompletionRequest{}, fast, llm.IsRateLimited)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Text).To(Equal("ok"))
		Expect(client.Calls()).To(Equal(1))
	})

	It("retries retryable failures until success", func() {
		var mu sync.Mutex
		attempts := 0
		client := &llmtest.Scripted{
			RespondFn: func(llm.CompletionRequest) (*llm.CompletionResult, error) {
				mu.Lock()
				defer mu.Unlock()
				attempts++
				if attempts < 3 {
					return nil, &llm.APIError{StatusCode: 429}
				}
				return &llm.CompletionResult{Text: "eventually"}, nil
			},
		}

		result, err := llm.CompleteWithRetry(ctx, client, llm.CompletionRequest{}, fast, llm.IsRateLimited)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Text).To(Equal("eventually"))
		Expect(client.Calls()).To(Equal(3))
	})

	It("does not retry non-retryable failures", func() {
		client := &llmtest.Scripted{
			RespondFn: func(llm.CompletionRequest) (*llm.CompletionResult, error) {
				return nil, &llm.APIError{StatusCode: 400}
			},
		}

		_, err := llm.CompleteWithRetry(ctx, client, llm.CompletionRequest{}, fast, llm.IsRateLimited)
		Expect(err).To(HaveOccurred())
		Expect(client.Calls()).To(Equal(1))
	})

	It("gives up after MaxRetries extra attempts", func() {
		client := &llmtest.Scripted{
			RespondFn: func(llm.CompletionRequest) (*llm.CompletionResult, error) {
				return nil, &llm.APIError{StatusCode: 429}
			},
		}

		_, err := llm.CompleteWithRetry(ctx, client, llm.CompletionRequest{}, fast, llm.IsRateLimited)
		Expect(llm.IsRateLimited(err)).To(BeTrue())
		Expect(client.Calls()).To(Equal(4))
	})

	It("honors context cancellation between attempts", func() {
		cctx, cancel := context.WithCancel(ctx)
		client := &llmtest.Scripted{
			RespondFn: func(llm.CompletionRequest) (*llm.CompletionResult, error) {
				cancel()
				return nil, &llm.APIError{StatusCode: 429}
			},
		}

		_, err := llm.CompleteWithRetry(cctx, client, llm.CompletionRequest{}, fast, llm.IsRateLimited)
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("SchemaFor", func() {
	type inner struct {
		Notes []string `json:"notes"`
	}
	type sample struct {
		Name   string `json:"name"`
		Count  int    `json:"count"`
		Detail inner  `json:"detail"`
	}

	It("reflects a strict object schema", func() {
		schema, err := llm.SchemaFor[sample]("sample")
		Expect(err).NotTo(HaveOccurred())
		Expect(schema.Name).To(Equal("sample"))
		Expect(schema.Schema["type"]).To(Equal("object"))
		Expect(schema.Schema["additionalProperties"]).To(Equal(false))
		Expect(schema.Schema["required"]).To(ConsistOf("name", "count", "detail"))

		props := schema.Schema["properties"].(map[string]any)
		detail := props["detail"].(map[string]any)
		Expect(detail["additionalProperties"]).To(Equal(false))
		Expect(detail["required"]).To(ConsistOf("notes"))
	})
})

var _ = Describe("CostTracker", func() {
	It("accumulates usage across concurrent calls", func() {
		tracker := llm.NewCostTracker()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tracker.Add(llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
			}()
		}
		wg.Wait()

		usage, calls := tracker.Total()
		Expect(calls).To(Equal(10))
		Expect(usage.PromptTokens).To(Equal(100))
		Expect(usage.CompletionTokens).To(Equal(50))
		Expect(usage.TotalTokens).To(Equal(150))
	})
})

// Package llmtest provides a scriptable llm.Client for tests.
package llmtest

import (
	"context"
	"sync"
	"time"

	"github.com/soulprintco/imprint/pkg/llm"
)

// Scripted is an llm.Client whose responses come from a caller-supplied
// function. It tracks concurrency so tests can assert fan-out bounds.
type Scripted struct {
	// RespondFn produces the response for a request. A nil RespondFn
	// echoes an empty completion.
	RespondFn func(req llm.CompletionRequest) (*llm.CompletionResult, error)

	// Delay, when set, stalls each call. Combined with MaxInFlight this
	// surfaces concurrency violations.
	Delay time.Duration

	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	requests    []llm.CompletionRequest
}

func (s *Scripted) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.RespondFn == nil {
		return &llm.CompletionResult{}, nil
	}
	return s.RespondFn(req)
}

// Calls returns how many completions have been requested.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (s *Scripted) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// Requests returns a copy of every request seen, in arrival order.
func (s *Scripted) Requests() []llm.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.CompletionRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

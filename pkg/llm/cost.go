package llm

import "sync"

// CostTracker accumulates usage across a job's completion calls so the
// pipeline can log aggregate spend. Safe for concurrent use.
type CostTracker struct {
	mu    sync.Mutex
	usage Usage
	calls int
}

func NewCostTracker() *CostTracker {
	return &CostTracker{}
}

// Add records one call's usage.
func (t *CostTracker) Add(u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.PromptTokens += u.PromptTokens
	t.usage.CompletionTokens += u.CompletionTokens
	t.usage.TotalTokens += u.TotalTokens
	t.calls++
}

// Total returns the accumulated usage and the number of calls recorded.
func (t *CostTracker) Total() (Usage, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage, t.calls
}

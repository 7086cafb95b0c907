// Package llm defines the completion client the extraction, consolidation,
// and synthesis stages talk through, plus the retry, schema, and cost
// plumbing shared by all of them.
package llm

import "context"

// ResponseSchema constrains a completion to structured JSON output.
type ResponseSchema struct {
	Name   string
	Schema map[string]any
}

// CompletionRequest is a single prompt against the configured model.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int

	// Schema, when set, requests strict JSON-schema constrained output.
	Schema *ResponseSchema
}

// Usage is the token accounting reported by the provider for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResult is the text of the completion plus its usage.
type CompletionResult struct {
	Text  string
	Usage Usage
}

// Client executes completions. Implementations must be safe for concurrent
// use; the extractor fans out over one shared client.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

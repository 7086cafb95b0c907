// Package embeddings defines the embedder used by the optional chunk
// embedding stage.
package embeddings

import "context"

// MaxInputChars bounds the text sent per embedding input. Longer chunks are
// truncated; embedding quality degrades gracefully past this point anyway.
const MaxInputChars = 8000

// Embedder converts texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Truncate clips s to MaxInputChars bytes.
func Truncate(s string) string {
	if len(s) <= MaxInputChars {
		return s
	}
	return s[:MaxInputChars]
}

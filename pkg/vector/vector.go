// Package vector defines the vector store the optional embed stage writes
// chunk embeddings into.
package vector

import "context"

// Document is one embedded chunk destined for the vector store.
type Document struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// Driver upserts embedded documents. Upserts must be idempotent on ID so
// job retries can replay the embed stage safely.
type Driver interface {
	Upsert(ctx context.Context, docs []Document) error
	Close() error
}

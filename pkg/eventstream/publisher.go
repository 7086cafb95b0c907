// Package eventstream publishes job lifecycle events to an event stream
// backend so downstream consumers can react to pipeline progress.
package eventstream

import "context"

// Publisher publishes job events to an event stream backend.
type Publisher interface {
	PublishJob(ctx context.Context, event *JobEvent) error
	Close() error
}

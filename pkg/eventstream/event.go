package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/soulprintco/imprint/pkg/store"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeJobStatus is emitted on every job stage or status transition.
	EventTypeJobStatus = "imprint.job.status"

	// EventTypeMemoryReady is emitted when a job publishes a new valid
	// memory document.
	EventTypeMemoryReady = "imprint.memory.ready"
)

// JobEvent is a transport-neutral event payload for a job transition.
type JobEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	JobID         string       `json:"job_id"`
	UserID        string       `json:"user_id"`
	Stage         store.Stage  `json:"stage"`
	Status        store.Status `json:"status"`
	Error         string       `json:"error,omitempty"`
}

// NewJobEvent builds an event of the given type from a job's current state.
func NewJobEvent(eventType string, job *store.Job) *JobEvent {
	return &JobEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		JobID:         job.ID,
		UserID:        job.UserID,
		Stage:         job.Stage,
		Status:        job.Status,
		Error:         job.Error,
	}
}

// Package store persists pipeline state: jobs, chunks, extracted facts,
// stage artifacts, and finished memory documents. All writes that a retried
// job can replay are idempotent.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soulprintco/imprint/pkg/chunker"
	"github.com/soulprintco/imprint/pkg/extractor"
	"github.com/soulprintco/imprint/pkg/synthesizer"
)

// Stage is the pipeline checkpoint a job has reached.
type Stage string

const (
	StageIngest      Stage = "ingest"
	StageReconstruct Stage = "reconstruct"
	StageChunk       Stage = "chunk"
	StageExtract     Stage = "extract"
	StageConsolidate Stage = "consolidate"
	StageSynthesize  Stage = "synthesize"
	StageDone        Stage = "done"
)

// Stages lists the pipeline stages in execution order, StageDone last.
var Stages = []Stage{
	StageIngest,
	StageReconstruct,
	StageChunk,
	StageExtract,
	StageConsolidate,
	StageSynthesize,
	StageDone,
}

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Job is one archive-to-memory run. Jobs are never deleted; a retried job
// resumes from its recorded stage.
type Job struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	StoragePath string     `json:"storage_path"`
	Stage       Stage      `json:"stage"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// Store is the persistence boundary for the pipeline and the API.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, userID string) ([]*Job, error)
	UpdateJob(ctx context.Context, job *Job) error

	// SaveChunks persists chunks keyed on (job_id, chunk_id); replaying the
	// same chunks is a no-op.
	SaveChunks(ctx context.Context, jobID string, chunks []chunker.Chunk) error
	GetChunks(ctx context.Context, jobID string) ([]chunker.Chunk, error)
	CountChunks(ctx context.Context, jobID string) (int, error)

	// SaveFacts persists per-chunk fact sets keyed on (job_id, chunk_id);
	// replays are no-ops.
	SaveFacts(ctx context.Context, jobID string, facts []extractor.ChunkFacts) error
	GetFacts(ctx context.Context, jobID string) ([]extractor.ChunkFacts, error)
	CountFacts(ctx context.Context, jobID string) (int, error)

	// SaveArtifact stores one stage's checkpoint blob, replacing any prior
	// blob for that (job_id, stage).
	SaveArtifact(ctx context.Context, jobID string, stage Stage, data []byte) error
	GetArtifact(ctx context.Context, jobID string, stage Stage) ([]byte, error)

	// PutMemory appends a new memory document for the user. GetLatestMemory
	// returns the newest valid one.
	PutMemory(ctx context.Context, userID string, doc *synthesizer.MemoryDocument) error
	GetLatestMemory(ctx context.Context, userID string) (*synthesizer.MemoryDocument, error)

	Close() error
}

// Package inmemory is the non-persistent store driver used by tests and
// one-shot runs.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/soulprintco/imprint/pkg/chunker"
	"github.com/soulprintco/imprint/pkg/extractor"
	"github.com/soulprintco/imprint/pkg/store"
	"github.com/soulprintco/imprint/pkg/synthesizer"
)

type artifactKey struct {
	jobID string
	stage store.Stage
}

type Driver struct {
	mu        sync.RWMutex
	jobs      map[string]store.Job
	jobOrder  []string
	chunks    map[string]map[string]chunker.Chunk // jobID -> chunkID -> chunk
	chunkSeq  map[string][]string                 // jobID -> insertion order
	facts     map[string]map[string]extractor.FactSet
	factSeq   map[string][]string
	artifacts map[artifactKey][]byte
	memories  map[string][]synthesizer.MemoryDocument // userID -> append order
}

func New() *Driver {
	return &Driver{
		jobs:      map[string]store.Job{},
		chunks:    map[string]map[string]chunker.Chunk{},
		chunkSeq:  map[string][]string{},
		facts:     map[string]map[string]extractor.FactSet{},
		factSeq:   map[string][]string{},
		artifacts: map[artifactKey][]byte{},
		memories:  map[string][]synthesizer.MemoryDocument{},
	}
}

func (d *Driver) CreateJob(ctx context.Context, job *store.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs[job.ID] = *job
	d.jobOrder = append(d.jobOrder, job.ID)
	return nil
}

func (d *Driver) GetJob(ctx context.Context, id string) (*store.Job, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "job", ID: id}
	}
	return &job, nil
}

func (d *Driver) ListJobs(ctx context.Context, userID string) ([]*store.Job, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*store.Job
	for _, id := range d.jobOrder {
		job := d.jobs[id]
		if userID == "" || job.UserID == userID {
			j := job
			out = append(out, &j)
		}
	}
	return out, nil
}

func (d *Driver) UpdateJob(ctx context.Context, job *store.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.jobs[job.ID]; !ok {
		return &store.NotFoundError{Kind: "job", ID: job.ID}
	}
	d.jobs[job.ID] = *job
	return nil
}

func (d *Driver) SaveChunks(ctx context.Context, jobID string, chunks []chunker.Chunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	byID := d.chunks[jobID]
	if byID == nil {
		byID = map[string]chunker.Chunk{}
		d.chunks[jobID] = byID
	}
	for _, c := range chunks {
		if _, exists := byID[c.ID]; exists {
			continue
		}
		byID[c.ID] = c
		d.chunkSeq[jobID] = append(d.chunkSeq[jobID], c.ID)
	}
	return nil
}

func (d *Driver) GetChunks(ctx context.Context, jobID string) ([]chunker.Chunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []chunker.Chunk
	for _, id := range d.chunkSeq[jobID] {
		out = append(out, d.chunks[jobID][id])
	}
	return out, nil
}

func (d *Driver) CountChunks(ctx context.Context, jobID string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.chunks[jobID]), nil
}

func (d *Driver) SaveFacts(ctx context.Context, jobID string, facts []extractor.ChunkFacts) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	byChunk := d.facts[jobID]
	if byChunk == nil {
		byChunk = map[string]extractor.FactSet{}
		d.facts[jobID] = byChunk
	}
	for _, cf := range facts {
		if _, exists := byChunk[cf.ChunkID]; exists {
			continue
		}
		byChunk[cf.ChunkID] = cf.Facts
		d.factSeq[jobID] = append(d.factSeq[jobID], cf.ChunkID)
	}
	return nil
}

func (d *Driver) GetFacts(ctx context.Context, jobID string) ([]extractor.ChunkFacts, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []extractor.ChunkFacts
	for _, chunkID := range d.factSeq[jobID] {
		out = append(out, extractor.ChunkFacts{ChunkID: chunkID, Facts: d.facts[jobID][chunkID]})
	}
	return out, nil
}

func (d *Driver) CountFacts(ctx context.Context, jobID string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.facts[jobID]), nil
}

func (d *Driver) SaveArtifact(ctx context.Context, jobID string, stage store.Stage, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	d.artifacts[artifactKey{jobID, stage}] = cp
	return nil
}

func (d *Driver) GetArtifact(ctx context.Context, jobID string, stage store.Stage) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.artifacts[artifactKey{jobID, stage}]
	if !ok {
		return nil, &store.NotFoundError{Kind: "artifact", ID: jobID + "/" + string(stage)}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (d *Driver) PutMemory(ctx context.Context, userID string, doc *synthesizer.MemoryDocument) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memories[userID] = append(d.memories[userID], *doc)
	return nil
}

func (d *Driver) GetLatestMemory(ctx context.Context, userID string) (*synthesizer.MemoryDocument, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	docs := d.memories[userID]

	// Newest valid wins; append order breaks GeneratedAt ties.
	idx := -1
	for i, doc := range docs {
		if doc.Valid {
			idx = i
		}
	}
	if idx < 0 {
		return nil, &store.NotFoundError{Kind: "memory", ID: userID}
	}
	doc := docs[idx]
	return &doc, nil
}

func (d *Driver) Close() error { return nil }

// Jobs returns all job ids, sorted. Test helper.
func (d *Driver) Jobs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.jobOrder))
	copy(out, d.jobOrder)
	sort.Strings(out)
	return out
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/archive"
	"github.com/soulprintco/imprint/pkg/chunker"
	"github.com/soulprintco/imprint/pkg/consolidator"
	"github.com/soulprintco/imprint/pkg/eventstream"
	"github.com/soulprintco/imprint/pkg/extractor"
	"github.com/soulprintco/imprint/pkg/store"
	"github.com/soulprintco/imprint/pkg/vector"
)

// conversationRecord is the reconstruct-stage checkpoint: one linearized,
// filtered conversation.
type conversationRecord struct {
	ConversationID string          `json:"conversation_id"`
	Title          string          `json:"title"`
	Messages       []storedMessage `json:"messages"`
}

// storedMessage keeps only what chunking needs.
type storedMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (m storedMessage) toArchive() archive.Message {
	return archive.Message{
		Role:  m.Role,
		Parts: []archive.ContentPart{{Kind: archive.PartText, Text: m.Text}},
	}
}

func (e *Engine) ingestDone(ctx context.Context, job *store.Job) (bool, error) {
	return e.cfg.Ingestor.IsStaged(job.ID), nil
}

func (e *Engine) runIngest(ctx context.Context, job *store.Job) error {
	_, err := e.cfg.Ingestor.Stage(ctx, job.ID, job.StoragePath)
	return err
}

// runReconstruct streams the staged archive, linearizing and filtering each
// conversation. Malformed trees are logged and skipped; the rest of the
// archive proceeds.
func (e *Engine) runReconstruct(ctx context.Context, job *store.Job) error {
	src, err := e.cfg.Ingestor.Open(job.ID)
	if err != nil {
		return err
	}
	defer src.Close()

	var (
		records   []conversationRecord
		malformed int
	)
	err = archive.ScanArchive(ctx, src, func(conv *archive.Conversation) error {
		msgs, err := archive.Reconstruct(conv)
		if err != nil {
			var mte *archive.MalformedTreeError
			if errors.As(err, &mte) {
				malformed++
				e.logger.Warn("skipping malformed conversation",
					zap.String("job_id", job.ID),
					zap.String("conversation_id", mte.ConversationID),
					zap.String("reason", mte.Reason),
				)
				return nil
			}
			return err
		}

		filtered := archive.FilterMessages(msgs)
		if len(filtered) == 0 {
			return nil
		}

		record := conversationRecord{
			ConversationID: conv.ID,
			Title:          conv.Title,
			Messages:       make([]storedMessage, 0, len(filtered)),
		}
		for _, m := range filtered {
			record.Messages = append(record.Messages, storedMessage{Role: m.Role, Text: m.Text()})
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("archive reconstructed",
		zap.String("job_id", job.ID),
		zap.Int("conversations", len(records)),
		zap.Int("malformed_skipped", malformed),
	)

	blob, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding reconstruct checkpoint: %w", err)
	}
	return e.cfg.Store.SaveArtifact(ctx, job.ID, store.StageReconstruct, blob)
}

func (e *Engine) loadRecords(ctx context.Context, jobID string) ([]conversationRecord, error) {
	blob, err := e.cfg.Store.GetArtifact(ctx, jobID, store.StageReconstruct)
	if err != nil {
		return nil, err
	}
	var records []conversationRecord
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, fmt.Errorf("decoding reconstruct checkpoint: %w", err)
	}
	return records, nil
}

func (e *Engine) runChunk(ctx context.Context, job *store.Job) error {
	records, err := e.loadRecords(ctx, job.ID)
	if err != nil {
		return err
	}

	var all []chunker.Chunk
	for _, record := range records {
		msgs := make([]archive.Message, 0, len(record.Messages))
		for _, m := range record.Messages {
			msgs = append(msgs, m.toArchive())
		}

		chunks, err := e.cfg.Chunker.Split(record.ConversationID, msgs)
		if err != nil {
			return err
		}
		all = append(all, chunks...)
	}

	if err := e.cfg.Store.SaveChunks(ctx, job.ID, all); err != nil {
		return err
	}

	marker, err := json.Marshal(map[string]int{"chunk_count": len(all)})
	if err != nil {
		return fmt.Errorf("encoding chunk checkpoint: %w", err)
	}
	if err := e.cfg.Store.SaveArtifact(ctx, job.ID, store.StageChunk, marker); err != nil {
		return err
	}

	// Embedding is best effort: a vector store outage never fails the job.
	e.embedChunks(ctx, job, all)
	return nil
}

// embedChunks embeds medium-tier chunks and upserts them into the vector
// store. All failures are logged and swallowed.
func (e *Engine) embedChunks(ctx context.Context, job *store.Job, chunks []chunker.Chunk) {
	if e.cfg.Embedder == nil || e.cfg.Vectors == nil {
		return
	}

	var medium []chunker.Chunk
	for _, c := range chunks {
		if c.Tier == chunker.TierMedium {
			medium = append(medium, c)
		}
	}
	if len(medium) == 0 {
		return
	}

	const batchSize = 64
	embedded := 0
	for start := 0; start < len(medium); start += batchSize {
		end := min(start+batchSize, len(medium))
		batch := medium[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := e.cfg.Embedder.Embed(ctx, texts)
		if err != nil {
			e.logger.Warn("chunk embedding failed",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
			return
		}

		docs := make([]vector.Document, len(batch))
		for i, c := range batch {
			docs[i] = vector.Document{
				ID:     c.ID,
				Vector: vectors[i],
				Payload: map[string]string{
					"user_id":         job.UserID,
					"conversation_id": c.ConversationID,
					"tier":            string(c.Tier),
				},
			}
		}

		if err := e.cfg.Vectors.Upsert(ctx, docs); err != nil {
			e.logger.Warn("chunk embedding upsert failed",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
			return
		}
		embedded += len(batch)
	}

	e.logger.Info("chunks embedded",
		zap.String("job_id", job.ID),
		zap.Int("count", embedded),
	)
}

func (e *Engine) runExtract(ctx context.Context, job *store.Job) error {
	chunks, err := e.cfg.Store.GetChunks(ctx, job.ID)
	if err != nil {
		return err
	}

	facts, err := e.cfg.Extractor.ExtractAll(ctx, chunks)
	if err != nil {
		return err
	}

	if err := e.cfg.Store.SaveFacts(ctx, job.ID, facts); err != nil {
		return err
	}

	empty := 0
	for _, cf := range facts {
		if cf.Facts.Empty() {
			empty++
		}
	}
	e.logger.Info("facts extracted",
		zap.String("job_id", job.ID),
		zap.Int("chunks", len(chunks)),
		zap.Int("empty_fact_sets", empty),
	)

	marker, err := json.Marshal(map[string]int{"fact_sets": len(facts)})
	if err != nil {
		return fmt.Errorf("encoding extract checkpoint: %w", err)
	}
	return e.cfg.Store.SaveArtifact(ctx, job.ID, store.StageExtract, marker)
}

func (e *Engine) runConsolidate(ctx context.Context, job *store.Job) error {
	facts, err := e.cfg.Store.GetFacts(ctx, job.ID)
	if err != nil {
		return err
	}

	consolidated := consolidator.Consolidate(facts)
	reduced, err := e.cfg.Reducer.Reduce(ctx, consolidated)
	if err != nil {
		return err
	}

	e.logger.Info("facts consolidated",
		zap.String("job_id", job.ID),
		zap.Int("facts", reduced.Len()),
		zap.Int("tokens", consolidator.FactTokens(reduced)),
	)

	blob, err := json.Marshal(reduced)
	if err != nil {
		return fmt.Errorf("encoding consolidate checkpoint: %w", err)
	}
	return e.cfg.Store.SaveArtifact(ctx, job.ID, store.StageConsolidate, blob)
}

func (e *Engine) runSynthesize(ctx context.Context, job *store.Job) error {
	blob, err := e.cfg.Store.GetArtifact(ctx, job.ID, store.StageConsolidate)
	if err != nil {
		return err
	}
	var consolidated extractor.FactSet
	if err := json.Unmarshal(blob, &consolidated); err != nil {
		return fmt.Errorf("decoding consolidate checkpoint: %w", err)
	}

	// A failure here leaves any previous valid memory document in place;
	// readers keep getting the stale one rather than nothing.
	doc, err := e.cfg.Synthesizer.Synthesize(ctx, consolidated)
	if err != nil {
		return err
	}

	if err := e.cfg.Store.PutMemory(ctx, job.UserID, doc); err != nil {
		return err
	}

	marker, err := json.Marshal(map[string]any{"generated_at": doc.GeneratedAt})
	if err != nil {
		return fmt.Errorf("encoding synthesize checkpoint: %w", err)
	}
	if err := e.cfg.Store.SaveArtifact(ctx, job.ID, store.StageSynthesize, marker); err != nil {
		return err
	}

	event := eventstream.NewJobEvent(eventstream.EventTypeMemoryReady, job)
	if err := e.cfg.Events.PublishJob(ctx, event); err != nil {
		e.logger.Warn("publishing memory ready event",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
	return nil
}

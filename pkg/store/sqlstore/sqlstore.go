// Package sqlstore implements store.Store on database/sql. The sqlite and
// postgres drivers share this implementation and differ only in schema DDL
// and placeholder style.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/soulprintco/imprint/pkg/chunker"
	"github.com/soulprintco/imprint/pkg/extractor"
	"github.com/soulprintco/imprint/pkg/store"
	"github.com/soulprintco/imprint/pkg/synthesizer"
)

// Rebind rewrites ? placeholders for the target database.
type Rebind func(query string) string

// Questions is the identity rebind for databases that take ? natively.
func Questions(query string) string { return query }

// Dollars rewrites ? placeholders to $1..$n for PostgreSQL.
func Dollars(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type DB struct {
	db     *sql.DB
	rebind Rebind
}

// New wraps an open database. The caller has already applied schema DDL.
func New(db *sql.DB, rebind Rebind) *DB {
	return &DB{db: db, rebind: rebind}
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.rebind(query), args...)
}

func (d *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, d.rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, d.rebind(query), args...)
}

func (d *DB) CreateJob(ctx context.Context, job *store.Job) error {
	_, err := d.exec(ctx,
		`INSERT INTO jobs (id, user_id, storage_path, stage, status, error, created_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.StoragePath, string(job.Stage), string(job.Status),
		job.Error, job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

func scanJob(scan func(...any) error) (*store.Job, error) {
	var (
		job                    store.Job
		stage, status          string
		startedAt, completedAt sql.NullTime
	)
	err := scan(&job.ID, &job.UserID, &job.StoragePath, &stage, &status,
		&job.Error, &job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	job.Stage = store.Stage(stage)
	job.Status = store.Status(status)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

const jobColumns = `id, user_id, storage_path, stage, status, error, created_at, started_at, completed_at`

func (d *DB) GetJob(ctx context.Context, id string) (*store.Job, error) {
	row := d.queryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{Kind: "job", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return job, nil
}

func (d *DB) ListJobs(ctx context.Context, userID string) ([]*store.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []*store.Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (d *DB) UpdateJob(ctx context.Context, job *store.Job) error {
	res, err := d.exec(ctx,
		`UPDATE jobs SET stage = ?, status = ?, error = ?, started_at = ?, completed_at = ? WHERE id = ?`,
		string(job.Stage), string(job.Status), job.Error, job.StartedAt, job.CompletedAt, job.ID,
	)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if affected == 0 {
		return &store.NotFoundError{Kind: "job", ID: job.ID}
	}
	return nil
}

func (d *DB) SaveChunks(ctx context.Context, jobID string, chunks []chunker.Chunk) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving chunks: %w", err)
	}
	defer tx.Rollback()

	stmt := d.rebind(
		`INSERT INTO chunks (job_id, chunk_id, conversation_id, tier, body, token_estimate, start_index, end_index, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_id, chunk_id) DO NOTHING`)
	for i, c := range chunks {
		_, err := tx.ExecContext(ctx, stmt,
			jobID, c.ID, c.ConversationID, string(c.Tier), c.Text,
			c.TokenEstimate, c.StartIndex, c.EndIndex, i,
		)
		if err != nil {
			return fmt.Errorf("saving chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (d *DB) GetChunks(ctx context.Context, jobID string) ([]chunker.Chunk, error) {
	rows, err := d.query(ctx,
		`SELECT chunk_id, conversation_id, tier, body, token_estimate, start_index, end_index
		 FROM chunks WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("getting chunks: %w", err)
	}
	defer rows.Close()

	var out []chunker.Chunk
	for rows.Next() {
		var (
			c    chunker.Chunk
			tier string
		)
		if err := rows.Scan(&c.ID, &c.ConversationID, &tier, &c.Text,
			&c.TokenEstimate, &c.StartIndex, &c.EndIndex); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Tier = chunker.Tier(tier)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) CountChunks(ctx context.Context, jobID string) (int, error) {
	var n int
	err := d.queryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE job_id = ?`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func (d *DB) SaveFacts(ctx context.Context, jobID string, facts []extractor.ChunkFacts) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving facts: %w", err)
	}
	defer tx.Rollback()

	stmt := d.rebind(
		`INSERT INTO facts (job_id, chunk_id, fact_set, seq)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (job_id, chunk_id) DO NOTHING`)
	for i, cf := range facts {
		blob, err := json.Marshal(cf.Facts)
		if err != nil {
			return fmt.Errorf("encoding facts for chunk %s: %w", cf.ChunkID, err)
		}
		if _, err := tx.ExecContext(ctx, stmt, jobID, cf.ChunkID, string(blob), i); err != nil {
			return fmt.Errorf("saving facts for chunk %s: %w", cf.ChunkID, err)
		}
	}
	return tx.Commit()
}

func (d *DB) GetFacts(ctx context.Context, jobID string) ([]extractor.ChunkFacts, error) {
	rows, err := d.query(ctx,
		`SELECT chunk_id, fact_set FROM facts WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("getting facts: %w", err)
	}
	defer rows.Close()

	var out []extractor.ChunkFacts
	for rows.Next() {
		var (
			cf   extractor.ChunkFacts
			blob string
		)
		if err := rows.Scan(&cf.ChunkID, &blob); err != nil {
			return nil, fmt.Errorf("scanning facts: %w", err)
		}
		if err := json.Unmarshal([]byte(blob), &cf.Facts); err != nil {
			return nil, fmt.Errorf("decoding facts for chunk %s: %w", cf.ChunkID, err)
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}

func (d *DB) CountFacts(ctx context.Context, jobID string) (int, error) {
	var n int
	err := d.queryRow(ctx, `SELECT COUNT(*) FROM facts WHERE job_id = ?`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting facts: %w", err)
	}
	return n, nil
}

func (d *DB) SaveArtifact(ctx context.Context, jobID string, stage store.Stage, data []byte) error {
	_, err := d.exec(ctx,
		`INSERT INTO artifacts (job_id, stage, data)
		 VALUES (?, ?, ?)
		 ON CONFLICT (job_id, stage) DO UPDATE SET data = excluded.data`,
		jobID, string(stage), data,
	)
	if err != nil {
		return fmt.Errorf("saving %s artifact: %w", stage, err)
	}
	return nil
}

func (d *DB) GetArtifact(ctx context.Context, jobID string, stage store.Stage) ([]byte, error) {
	var data []byte
	err := d.queryRow(ctx,
		`SELECT data FROM artifacts WHERE job_id = ? AND stage = ?`,
		jobID, string(stage)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{Kind: "artifact", ID: jobID + "/" + string(stage)}
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s artifact: %w", stage, err)
	}
	return data, nil
}

func (d *DB) PutMemory(ctx context.Context, userID string, doc *synthesizer.MemoryDocument) error {
	blob, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding memory document: %w", err)
	}

	_, err = d.exec(ctx,
		`INSERT INTO memories (id, user_id, document, generated_at, valid)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, string(blob), doc.GeneratedAt, doc.Valid,
	)
	if err != nil {
		return fmt.Errorf("saving memory document: %w", err)
	}
	return nil
}

func (d *DB) GetLatestMemory(ctx context.Context, userID string) (*synthesizer.MemoryDocument, error) {
	var blob string
	err := d.queryRow(ctx,
		`SELECT document FROM memories WHERE user_id = ? AND valid ORDER BY generated_at DESC, id DESC LIMIT 1`,
		userID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{Kind: "memory", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("getting memory document: %w", err)
	}

	var doc synthesizer.MemoryDocument
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return nil, fmt.Errorf("decoding memory document: %w", err)
	}
	return &doc, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Package postgres is the shared-database store driver.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/soulprintco/imprint/pkg/store/sqlstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	stage        TEXT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_jobs_user ON jobs (user_id);

CREATE TABLE IF NOT EXISTS chunks (
	job_id          TEXT NOT NULL,
	chunk_id        TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	tier            TEXT NOT NULL,
	body            TEXT NOT NULL,
	token_estimate  INTEGER NOT NULL,
	start_index     INTEGER NOT NULL,
	end_index       INTEGER NOT NULL,
	seq             INTEGER NOT NULL,
	PRIMARY KEY (job_id, chunk_id)
);

CREATE TABLE IF NOT EXISTS facts (
	job_id   TEXT NOT NULL,
	chunk_id TEXT NOT NULL,
	fact_set TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	PRIMARY KEY (job_id, chunk_id)
);

CREATE TABLE IF NOT EXISTS artifacts (
	job_id TEXT NOT NULL,
	stage  TEXT NOT NULL,
	data   BYTEA NOT NULL,
	PRIMARY KEY (job_id, stage)
);

CREATE TABLE IF NOT EXISTS memories (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	document     TEXT NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	valid        BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories (user_id);
`

// Open connects with the given DSN, applies the schema, and returns a ready
// store.
func Open(dsn string) (*sqlstore.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: applying schema: %w", err)
	}

	return sqlstore.New(db, sqlstore.Dollars), nil
}

// Package sqlite is the embedded store driver. The schema is created on
// open, so a fresh database file is usable immediately.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

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
	created_at   TIMESTAMP NOT NULL,
	started_at   TIMESTAMP,
	completed_at TIMESTAMP
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
	data   BLOB NOT NULL,
	PRIMARY KEY (job_id, stage)
);

CREATE TABLE IF NOT EXISTS memories (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	document     TEXT NOT NULL,
	generated_at TIMESTAMP NOT NULL,
	valid        BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories (user_id);
`

// Open opens (creating if necessary) the database at path and returns a
// ready store.
func Open(path string) (*sqlstore.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}

	// SQLite serializes writers; one connection avoids lock thrash.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: applying schema: %w", err)
	}

	return sqlstore.New(db, sqlstore.Questions), nil
}

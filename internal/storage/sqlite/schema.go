// ABOUTME: SQLite database schema for run history
// ABOUTME: Stores run and per-chunk metadata only, never document or model text
package sqlite

// Schema contains all SQL statements for database initialization
const Schema = `
-- One row per pipeline run
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source TEXT,
    backend TEXT,
    model TEXT,
    status TEXT NOT NULL,
    total_chunks INTEGER NOT NULL DEFAULT 0,
    completed_chunks INTEGER NOT NULL DEFAULT 0,
    failed_chunks INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);

-- Outcome of each processed chunk
CREATE TABLE IF NOT EXISTS chunk_results (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    chunk_index INTEGER NOT NULL,
    succeeded INTEGER NOT NULL,
    error_detail TEXT,
    output_chars INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

// SchemaVersion is the current schema version for migrations
const SchemaVersion = 1

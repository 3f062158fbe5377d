// ABOUTME: Run history storage operations for SQLite
// ABOUTME: Records finished pipeline runs and lists or loads them for review
package sqlite

import (
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/harper/anonymizer/internal/models"
)

// RunSummary is one row of the history listing
type RunSummary struct {
	RunID      string           `json:"run_id"`
	Source     string           `json:"source,omitempty"`
	Backend    string           `json:"backend,omitempty"`
	Model      string           `json:"model,omitempty"`
	Status     models.RunStatus `json:"status"`
	Total      int              `json:"total_chunks"`
	Completed  int              `json:"completed_chunks"`
	Failed     int              `json:"failed_chunks"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// ChunkOutcome is the stored metadata of one chunk result
type ChunkOutcome struct {
	Index       int    `json:"index"`
	Succeeded   bool   `json:"succeeded"`
	ErrorDetail string `json:"error_detail,omitempty"`
	OutputChars int    `json:"output_chars"`
}

// RunDetail is a run with its chunk outcomes
type RunDetail struct {
	RunSummary
	Chunks []ChunkOutcome `json:"chunks"`
}

// RunStore handles run history persistence
type RunStore struct {
	db      *DB
	backend string
	model   string
}

// NewRunStore creates a RunStore that labels recorded runs with backend and model
func NewRunStore(db *DB, backend, model string) *RunStore {
	return &RunStore{db: db, backend: backend, model: model}
}

// RecordRun saves a finished run and its chunk outcomes in one transaction
func (s *RunStore) RecordRun(state *models.RunState) error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, source, backend, model, status, total_chunks, completed_chunks,
				failed_chunks, error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				completed_chunks = excluded.completed_chunks,
				failed_chunks = excluded.failed_chunks,
				error = excluded.error,
				finished_at = excluded.finished_at
		`, state.RunID, nullString(state.Source), nullString(s.backend), nullString(s.model),
			string(state.Status), state.Total, state.Completed, len(state.FailedIndices()),
			nullString(state.Error), state.StartedAt, nullTime(state.FinishedAt))
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM chunk_results WHERE run_id = ?`, state.RunID); err != nil {
			return fmt.Errorf("failed to clear chunk results: %w", err)
		}

		for _, res := range state.Results {
			_, err := tx.Exec(`
				INSERT INTO chunk_results (run_id, chunk_index, succeeded, error_detail, output_chars)
				VALUES (?, ?, ?, ?, ?)
			`, state.RunID, res.Index, res.Succeeded, nullString(res.ErrorDetail),
				utf8.RuneCountInString(res.OutputText))
			if err != nil {
				return fmt.Errorf("failed to save chunk %d: %w", res.Index, err)
			}
		}
		return nil
	})
}

// List returns the most recent runs first; limit <= 0 returns all
func (s *RunStore) List(limit int) ([]RunSummary, error) {
	query := `
		SELECT id, source, backend, model, status, total_chunks, completed_chunks,
			failed_chunks, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Get loads a run with its chunk outcomes; nil when the run does not exist
func (s *RunStore) Get(runID string) (*RunDetail, error) {
	row := s.db.QueryRow(`
		SELECT id, source, backend, model, status, total_chunks, completed_chunks,
			failed_chunks, error, started_at, finished_at
		FROM runs
		WHERE id = ?
	`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT chunk_index, succeeded, error_detail, output_chars
		FROM chunk_results
		WHERE run_id = ?
		ORDER BY chunk_index
	`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	detail := &RunDetail{RunSummary: *run, Chunks: []ChunkOutcome{}}
	for rows.Next() {
		var (
			chunk     ChunkOutcome
			errDetail sql.NullString
		)
		if err := rows.Scan(&chunk.Index, &chunk.Succeeded, &errDetail, &chunk.OutputChars); err != nil {
			return nil, err
		}
		chunk.ErrorDetail = errDetail.String
		detail.Chunks = append(detail.Chunks, chunk)
	}
	return detail, rows.Err()
}

// Delete removes a run and its chunk outcomes
func (s *RunStore) Delete(runID string) error {
	_, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, runID)
	return err
}

// Prune keeps only the newest keep runs and returns how many were removed
func (s *RunStore) Prune(keep int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM runs
		WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*RunSummary, error) {
	var (
		run                            RunSummary
		status                         string
		source, backend, model, errMsg sql.NullString
		finishedAt                     sql.NullTime
	)
	if err := row.Scan(&run.RunID, &source, &backend, &model, &status, &run.Total,
		&run.Completed, &run.Failed, &errMsg, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Source = source.String
	run.Backend = backend.String
	run.Model = model.String
	run.Status = models.RunStatus(status)
	run.Error = errMsg.String
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// ABOUTME: History storage layer wrapping the SQLite run store
// ABOUTME: Opens the database at a path or in memory and exposes the pipeline recorder
package sqlite

import (
	"fmt"

	"github.com/harper/anonymizer/internal/models"
)

// History manages persisted run metadata
type History struct {
	db   *DB
	runs *RunStore
}

// NewHistoryWithPath opens history at dbPath, labelling new runs with backend and model
func NewHistoryWithPath(dbPath, backend, model string) (*History, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &History{db: db, runs: NewRunStore(db, backend, model)}, nil
}

// NewHistoryInMemory creates an in-memory history (for testing)
func NewHistoryInMemory(backend, model string) (*History, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return &History{db: db, runs: NewRunStore(db, backend, model)}, nil
}

// Close closes the database
func (h *History) Close() error {
	return h.db.Close()
}

// RecordRun satisfies the pipeline's recorder interface
func (h *History) RecordRun(state *models.RunState) error {
	return h.runs.RecordRun(state)
}

// ListRuns returns the newest runs first
func (h *History) ListRuns(limit int) ([]RunSummary, error) {
	return h.runs.List(limit)
}

// GetRun returns one run with chunk outcomes, or nil
func (h *History) GetRun(runID string) (*RunDetail, error) {
	return h.runs.Get(runID)
}

// DeleteRun removes one run
func (h *History) DeleteRun(runID string) error {
	return h.runs.Delete(runID)
}

// Prune keeps the newest keep runs
func (h *History) Prune(keep int) (int64, error) {
	return h.runs.Prune(keep)
}

// ABOUTME: RunState tracks a single anonymization run from start to terminal state
// ABOUTME: Progress and terminal events are delivered to whoever started the run
package models

import "time"

// RunStatus is the pipeline state machine position
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunCancelled || s == RunFailed
}

// RunState is owned by exactly one run and mutated only by the pipeline
type RunState struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source,omitempty"`
	Status     RunStatus     `json:"status"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Results    []ChunkResult `json:"results"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// FailedIndices returns the indices of chunks that fell back to their original text
func (r *RunState) FailedIndices() []int {
	var failed []int
	for _, res := range r.Results {
		if !res.Succeeded {
			failed = append(failed, res.Index)
		}
	}
	return failed
}

// Duration returns how long the run took, or has taken so far
func (r *RunState) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ProgressEvent is emitted after every processed chunk
type ProgressEvent struct {
	RunID          string `json:"run_id"`
	Completed      int    `json:"completed"`
	Total          int    `json:"total"`
	ChunkIndex     int    `json:"chunk_index"`
	ChunkSucceeded bool   `json:"chunk_succeeded"`
	ErrorDetail    string `json:"error_detail,omitempty"`
}

// TerminalEvent is emitted once when a run stops
type TerminalEvent struct {
	RunID     string        `json:"run_id"`
	Status    RunStatus     `json:"status"`
	FinalText string        `json:"final_text,omitempty"`
	Results   []ChunkResult `json:"results"`
	Err       error         `json:"-"`
}

// ABOUTME: Pipeline orchestrates chunk-by-chunk anonymization through an inference client
// ABOUTME: Sequential processing with per-chunk fallback, progress events, and cooperative cancel
package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/harper/anonymizer/internal/llm"
	"github.com/harper/anonymizer/internal/logging"
	"github.com/harper/anonymizer/internal/models"
)

var (
	// ErrBackendUnavailable ends a run before any chunk could be processed
	ErrBackendUnavailable = errors.New("inference backend unavailable")
	// ErrChunkTooLarge marks a chunk rejected by the oversize policy
	ErrChunkTooLarge = errors.New("chunk exceeds maximum size")
)

// OversizePolicy decides what happens to chunks longer than MaxChunkChars
type OversizePolicy string

const (
	// OversizeAllow sends oversized chunks anyway and logs a warning
	OversizeAllow OversizePolicy = "allow"
	// OversizeReject falls back to the original text without calling the backend
	OversizeReject OversizePolicy = "reject"
)

// RunRecorder persists finished runs (history store)
type RunRecorder interface {
	RecordRun(state *models.RunState) error
}

// Settings is snapshotted at run start; later edits by the caller never reach a running pipeline
type Settings struct {
	Prompt          models.PromptSettings
	Sampling        llm.SamplingConfig
	PartialAssembly bool // assemble processed chunks when cancelled
}

// PipelineConfig holds the structural knobs of a pipeline
type PipelineConfig struct {
	HeaderDelimiter  string
	SectionSeparator string
	MaxChunkChars    int // 0 = unlimited
	Oversize         OversizePolicy
	Preflight        bool // ping the backend before running when it supports it
	Recorder         RunRecorder
	Logger           *log.Logger
}

// Pipeline drives chunks through the inference client one at a time
type Pipeline struct {
	client        llm.Client
	chunker       *Chunker
	builder       *PromptBuilder
	assembler     *Assembler
	maxChunkChars int
	oversize      OversizePolicy
	preflight     bool
	recorder      RunRecorder
	logger        *log.Logger
}

// NewPipeline creates a pipeline around the given inference client
func NewPipeline(client llm.Client, cfg PipelineConfig) *Pipeline {
	if cfg.Oversize == "" {
		cfg.Oversize = OversizeAllow
	}
	return &Pipeline{
		client:        client,
		chunker:       NewChunker(cfg.HeaderDelimiter),
		builder:       NewPromptBuilder(),
		assembler:     NewAssembler(cfg.SectionSeparator),
		maxChunkChars: cfg.MaxChunkChars,
		oversize:      cfg.Oversize,
		preflight:     cfg.Preflight,
		recorder:      cfg.Recorder,
		logger:        logging.ForComponent(cfg.Logger, "pipeline"),
	}
}

// Chunker exposes the pipeline's chunker so callers can preview sections
func (p *Pipeline) Chunker() *Chunker {
	return p.chunker
}

// CancelToken is a polled, idempotent cancellation flag checked between chunks
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken creates an unset token
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// RequestCancel sets the flag; safe to call any number of times from any goroutine
func (t *CancelToken) RequestCancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Run anonymizes doc synchronously. onProgress (optional) is called after every chunk.
// The returned state is never nil.
func (p *Pipeline) Run(ctx context.Context, doc models.Document, settings Settings, token *CancelToken, onProgress func(models.ProgressEvent)) (*models.RunState, models.TerminalEvent) {
	chunks, err := p.chunker.Split(doc.Text)
	return p.execute(ctx, uuid.NewString(), doc.Name, chunks, err, settings, token, onProgress)
}

// Process runs already-split chunks synchronously
func (p *Pipeline) Process(ctx context.Context, chunks []models.Chunk, settings Settings, token *CancelToken, onProgress func(models.ProgressEvent)) (*models.RunState, models.TerminalEvent) {
	return p.execute(ctx, uuid.NewString(), "", chunks, nil, settings, token, onProgress)
}

func (p *Pipeline) execute(ctx context.Context, runID, source string, chunks []models.Chunk, splitErr error, settings Settings, token *CancelToken, onProgress func(models.ProgressEvent)) (*models.RunState, models.TerminalEvent) {
	state := &models.RunState{
		RunID:     runID,
		Source:    source,
		Status:    models.RunIdle,
		Total:     len(chunks),
		StartedAt: time.Now(),
	}
	logger := p.logger.With("run_id", runID)

	if splitErr == nil && len(chunks) == 0 {
		splitErr = ErrEmptyDocument
	}
	if splitErr != nil {
		return p.finish(logger, state, chunks, settings, fmt.Errorf("rejecting document: %w", splitErr))
	}

	if p.preflight {
		if pinger, ok := p.client.(llm.Pinger); ok {
			if err := pinger.Ping(ctx); err != nil {
				return p.finish(logger, state, chunks, settings, fmt.Errorf("%w: %w", ErrBackendUnavailable, err))
			}
		}
	}

	snapshot := settings.Prompt.Clone()
	sampling := settings.Sampling
	state.Status = models.RunRunning
	state.Results = make([]models.ChunkResult, 0, len(chunks))
	logger.Info("run started", "source", source, "chunks", len(chunks), "examples", len(snapshot.Examples))

	anySucceeded := false
	for _, chunk := range chunks {
		if token.Cancelled() || ctx.Err() != nil {
			state.Status = models.RunCancelled
			logger.Info("run cancelled", "completed", state.Completed, "total", state.Total)
			break
		}

		result, err := p.processChunk(ctx, logger, snapshot, sampling, chunk)
		if err != nil && !anySucceeded && llm.IsUnreachable(err) {
			state.Results = nil
			return p.finish(logger, state, chunks, settings, fmt.Errorf("%w: %w", ErrBackendUnavailable, err))
		}
		if result.Succeeded && chunk.Body != "" {
			anySucceeded = true
		}

		state.Results = append(state.Results, result)
		state.Completed++

		if onProgress != nil {
			onProgress(models.ProgressEvent{
				RunID:          runID,
				Completed:      state.Completed,
				Total:          state.Total,
				ChunkIndex:     chunk.Index,
				ChunkSucceeded: result.Succeeded,
				ErrorDetail:    result.ErrorDetail,
			})
		}
	}

	if state.Status == models.RunRunning {
		state.Status = models.RunCompleted
	}
	return p.finish(logger, state, chunks, settings, nil)
}

// processChunk never lets an error escape as a missing result: failures become fallbacks.
// Header-only chunks keep their empty body and never reach the backend.
func (p *Pipeline) processChunk(ctx context.Context, logger *log.Logger, prompt models.PromptSettings, sampling llm.SamplingConfig, chunk models.Chunk) (models.ChunkResult, error) {
	start := time.Now()

	if chunk.Body == "" {
		logger.Debug("empty section, skipping inference", "index", chunk.Index)
		return models.SucceededResult(chunk.Index, ""), nil
	}

	if p.maxChunkChars > 0 {
		if size := utf8.RuneCountInString(chunk.Body); size > p.maxChunkChars {
			if p.oversize == OversizeReject {
				err := fmt.Errorf("%w: %d > %d characters", ErrChunkTooLarge, size, p.maxChunkChars)
				logger.Warn("chunk rejected, keeping original text", "index", chunk.Index, "error", err)
				return models.FallbackResult(chunk, err), err
			}
			logger.Warn("chunk exceeds size limit, sending anyway", "index", chunk.Index, "chars", size, "limit", p.maxChunkChars)
		}
	}

	fullPrompt := p.builder.Build(prompt.Instruction, prompt.Examples, chunk.Body)
	logger.Debug("inference started", "index", chunk.Index, "prompt_chars", len(fullPrompt))

	text, err := p.client.Infer(ctx, fullPrompt, sampling)
	if err != nil {
		logger.Warn("inference failed, keeping original text", "index", chunk.Index, "kind", llm.KindOf(err), "error", err)
		return models.FallbackResult(chunk, err), err
	}

	logger.Debug("inference finished", "index", chunk.Index, "duration", time.Since(start))
	return models.SucceededResult(chunk.Index, text), nil
}

// finish moves the run to its terminal state, assembles output, and records history
func (p *Pipeline) finish(logger *log.Logger, state *models.RunState, chunks []models.Chunk, settings Settings, runErr error) (*models.RunState, models.TerminalEvent) {
	var finalText string

	if runErr == nil {
		var err error
		switch {
		case state.Status == models.RunCompleted:
			finalText, err = p.assembler.Assemble(chunks, state.Results)
		case state.Status == models.RunCancelled && settings.PartialAssembly:
			finalText, err = p.assembler.AssemblePartial(chunks, state.Results)
		}
		if err != nil {
			runErr = fmt.Errorf("assembling output: %w", err)
		}
	}

	if runErr != nil {
		state.Status = models.RunFailed
		state.Error = runErr.Error()
		finalText = ""
		logger.Error("run failed", "error", runErr)
	}
	state.FinishedAt = time.Now()

	if state.Status == models.RunCompleted {
		logger.Info("run completed", "chunks", state.Total, "failed", len(state.FailedIndices()), "duration", state.Duration())
	}

	if p.recorder != nil {
		if err := p.recorder.RecordRun(state); err != nil {
			logger.Warn("failed to record run history", "error", err)
		}
	}

	results := make([]models.ChunkResult, len(state.Results))
	copy(results, state.Results)

	return state, models.TerminalEvent{
		RunID:     state.RunID,
		Status:    state.Status,
		FinalText: finalText,
		Results:   results,
		Err:       runErr,
	}
}

// Run is a handle on a pipeline execution running on its own goroutine
type Run struct {
	id       string
	token    *CancelToken
	progress chan models.ProgressEvent
	done     chan models.TerminalEvent
	state    *models.RunState
}

// Start launches the pipeline asynchronously. Progress is buffered for every chunk, so a
// slow consumer never stalls the run; the terminal event follows the last progress event.
func (p *Pipeline) Start(ctx context.Context, doc models.Document, settings Settings) *Run {
	chunks, splitErr := p.chunker.Split(doc.Text)
	settings.Prompt = settings.Prompt.Clone()

	r := &Run{
		id:       uuid.NewString(),
		token:    NewCancelToken(),
		progress: make(chan models.ProgressEvent, len(chunks)),
		done:     make(chan models.TerminalEvent, 1),
	}

	go func() {
		state, terminal := p.execute(ctx, r.id, doc.Name, chunks, splitErr, settings, r.token, func(ev models.ProgressEvent) {
			r.progress <- ev
		})
		r.state = state
		close(r.progress)
		r.done <- terminal
		close(r.done)
	}()

	return r
}

// ID returns the run identifier
func (r *Run) ID() string {
	return r.id
}

// RequestCancel asks the run to stop before its next chunk
func (r *Run) RequestCancel() {
	r.token.RequestCancel()
}

// Progress delivers one event per processed chunk; closed when the run stops
func (r *Run) Progress() <-chan models.ProgressEvent {
	return r.progress
}

// Done delivers the terminal event exactly once
func (r *Run) Done() <-chan models.TerminalEvent {
	return r.done
}

// State returns the final run state; only valid after Done has delivered
func (r *Run) State() *models.RunState {
	return r.state
}

// ABOUTME: Tests for the anonymization pipeline state machine
// ABOUTME: Covers fallback, cancellation, backend-unavailable, snapshots, and async delivery
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harper/anonymizer/internal/llm"
	"github.com/harper/anonymizer/internal/models"
)

// stubClient answers from a function of (call number, chunk body) and records prompts
type stubClient struct {
	mu      sync.Mutex
	prompts []string
	respond func(call int, body string) (string, error)
	pingErr error
	pinged  bool
}

func (s *stubClient) Infer(ctx context.Context, prompt string, cfg llm.SamplingConfig) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	call := len(s.prompts) - 1
	s.mu.Unlock()

	if s.respond == nil {
		return "***", nil
	}
	return s.respond(call, bodyOf(prompt))
}

func (s *stubClient) Ping(ctx context.Context) error {
	s.pinged = true
	return s.pingErr
}

func (s *stubClient) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// bodyOf extracts the chunk body from the last Original marker of a prompt
func bodyOf(prompt string) string {
	start := strings.LastIndex(prompt, "Original: ") + len("Original: ")
	end := strings.LastIndex(prompt, "\nDe-identified: ")
	return prompt[start:end]
}

func unreachable() error {
	return &llm.InferenceError{Kind: llm.KindUnreachable, Backend: "stub", Err: errors.New("connection refused")}
}

func testSettings() Settings {
	return Settings{
		Prompt:   models.DefaultPromptSettings(),
		Sampling: llm.DefaultSampling(),
	}
}

func numberedDocument(n int) models.Document {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "# Section %d\nBody %d\n", i, i)
	}
	return models.NewDocument("numbered.txt", sb.String())
}

func TestPipeline_EndToEndScenario(t *testing.T) {
	client := &stubClient{respond: func(call int, body string) (string, error) {
		switch body {
		case "John was 30.":
			return "*** was ***.", nil
		case "Lives in Boston.":
			return "Lives in ***.", nil
		default:
			return body, nil
		}
	}}
	p := NewPipeline(client, PipelineConfig{})

	doc := models.NewDocument("doc.txt", "Intro text.\n# A\nJohn was 30.\n# B\nLives in Boston.")
	state, done := p.Run(context.Background(), doc, testSettings(), NewCancelToken(), nil)

	if state.Status != models.RunCompleted {
		t.Fatalf("Status = %s, want completed (err: %v)", state.Status, done.Err)
	}
	want := "Intro text.\n# A\n*** was ***.\n# B\nLives in ***."
	if done.FinalText != want {
		t.Errorf("FinalText = %q, want %q", done.FinalText, want)
	}
	for _, prompt := range client.prompts {
		if strings.Contains(prompt, "# A") || strings.Contains(prompt, "# B") {
			t.Error("headers must never be sent to the model")
		}
	}
}

func TestPipeline_PerChunkFailuresDoNotAbort(t *testing.T) {
	client := &stubClient{respond: func(call int, body string) (string, error) {
		if call == 2 || call == 5 {
			return "", &llm.InferenceError{Kind: llm.KindTimeout, Backend: "stub", Err: context.DeadlineExceeded}
		}
		return "ANON " + body, nil
	}}
	p := NewPipeline(client, PipelineConfig{})

	var events []models.ProgressEvent
	state, done := p.Run(context.Background(), numberedDocument(7), testSettings(), NewCancelToken(), func(ev models.ProgressEvent) {
		events = append(events, ev)
	})

	if state.Status != models.RunCompleted {
		t.Fatalf("Status = %s, want completed", state.Status)
	}
	if len(state.Results) != 7 {
		t.Fatalf("len(Results) = %d, want 7", len(state.Results))
	}
	for i, res := range state.Results {
		failed := i == 2 || i == 5
		if res.Succeeded == failed {
			t.Errorf("result %d Succeeded = %v", i, res.Succeeded)
		}
		if failed {
			if res.OutputText != fmt.Sprintf("Body %d", i) {
				t.Errorf("result %d OutputText = %q, want original body", i, res.OutputText)
			}
			if res.ErrorDetail == "" {
				t.Errorf("result %d missing ErrorDetail", i)
			}
		}
	}

	if len(events) != 7 {
		t.Fatalf("len(events) = %d, want 7", len(events))
	}
	for i, ev := range events {
		if ev.Completed != i+1 || ev.Total != 7 || ev.ChunkIndex != i {
			t.Errorf("event %d = %+v", i, ev)
		}
		if ev.ChunkSucceeded == (i == 2 || i == 5) {
			t.Errorf("event %d ChunkSucceeded = %v", i, ev.ChunkSucceeded)
		}
	}
	if got := state.FailedIndices(); len(got) != 2 || got[0] != 2 || got[1] != 5 {
		t.Errorf("FailedIndices() = %v, want [2 5]", got)
	}
	if strings.Count(done.FinalText, "# Section") != 7 {
		t.Errorf("FinalText has wrong section count: %q", done.FinalText)
	}
}

func TestPipeline_EmptyResponseFallsBack(t *testing.T) {
	client := &stubClient{respond: func(call int, body string) (string, error) {
		return "", &llm.InferenceError{Kind: llm.KindMalformed, Backend: "stub", Err: llm.ErrEmptyResponse}
	}}
	p := NewPipeline(client, PipelineConfig{})

	state, done := p.Run(context.Background(), models.NewDocument("x", "Alice met Bob."), testSettings(), nil, nil)
	if state.Status != models.RunCompleted {
		t.Fatalf("Status = %s, want completed", state.Status)
	}
	if done.FinalText != "Alice met Bob." {
		t.Errorf("FinalText = %q, want original", done.FinalText)
	}
}

func TestPipeline_EmptySectionSkipsInference(t *testing.T) {
	client := &stubClient{respond: func(call int, body string) (string, error) { return "ANON", nil }}
	p := NewPipeline(client, PipelineConfig{})

	state, done := p.Run(context.Background(), models.NewDocument("x", "# A\na\n# B\n"), testSettings(), nil, nil)
	if state.Status != models.RunCompleted {
		t.Fatalf("Status = %s, want completed (err: %v)", state.Status, done.Err)
	}
	if client.calls() != 1 {
		t.Errorf("inference calls = %d, want 1", client.calls())
	}
	if want := "# A\nANON\n# B"; done.FinalText != want {
		t.Errorf("FinalText = %q, want %q", done.FinalText, want)
	}
	if !state.Results[1].Succeeded || state.Results[1].OutputText != "" {
		t.Errorf("Results[1] = %+v, want succeeded with empty output", state.Results[1])
	}
}

func TestPipeline_EmptySectionDoesNotMaskUnreachable(t *testing.T) {
	client := &stubClient{respond: func(call int, body string) (string, error) { return "", unreachable() }}
	p := NewPipeline(client, PipelineConfig{})

	state, done := p.Run(context.Background(), models.NewDocument("x", "# A\n# B\nAlice"), testSettings(), nil, nil)
	if state.Status != models.RunFailed {
		t.Fatalf("Status = %s, want failed", state.Status)
	}
	if !errors.Is(done.Err, ErrBackendUnavailable) {
		t.Errorf("Err = %v, want ErrBackendUnavailable", done.Err)
	}
}

func TestPipeline_CancelBetweenChunks(t *testing.T) {
	client := &stubClient{}
	p := NewPipeline(client, PipelineConfig{})
	token := NewCancelToken()

	const cancelAfter = 1
	state, done := p.Run(context.Background(), numberedDocument(5), testSettings(), token, func(ev models.ProgressEvent) {
		if ev.ChunkIndex == cancelAfter {
			token.RequestCancel()
			token.RequestCancel() // idempotent
		}
	})

	if state.Status != models.RunCancelled {
		t.Fatalf("Status = %s, want cancelled", state.Status)
	}
	if len(state.Results) != cancelAfter+1 {
		t.Errorf("len(Results) = %d, want %d", len(state.Results), cancelAfter+1)
	}
	if client.calls() != cancelAfter+1 {
		t.Errorf("inference calls = %d, want %d", client.calls(), cancelAfter+1)
	}
	if done.FinalText != "" {
		t.Errorf("FinalText = %q, want empty without partial assembly", done.FinalText)
	}
	if done.Err != nil {
		t.Errorf("cancellation should not be an error, got %v", done.Err)
	}
}

func TestPipeline_CancelWithPartialAssembly(t *testing.T) {
	client := &stubClient{respond: func(call int, body string) (string, error) { return "ANON", nil }}
	p := NewPipeline(client, PipelineConfig{})
	token := NewCancelToken()

	settings := testSettings()
	settings.PartialAssembly = true

	_, done := p.Run(context.Background(), numberedDocument(4), settings, token, func(ev models.ProgressEvent) {
		if ev.ChunkIndex == 1 {
			token.RequestCancel()
		}
	})

	if done.Status != models.RunCancelled {
		t.Fatalf("Status = %s, want cancelled", done.Status)
	}
	want := "# Section 0\nANON\n# Section 1\nANON"
	if done.FinalText != want {
		t.Errorf("FinalText = %q, want %q", done.FinalText, want)
	}
}

func TestPipeline_CancelledBeforeStart(t *testing.T) {
	client := &stubClient{}
	p := NewPipeline(client, PipelineConfig{})
	token := NewCancelToken()
	token.RequestCancel()

	state, _ := p.Run(context.Background(), numberedDocument(3), testSettings(), token, nil)
	if state.Status != models.RunCancelled {
		t.Errorf("Status = %s, want cancelled", state.Status)
	}
	if client.calls() != 0 {
		t.Errorf("inference calls = %d, want 0", client.calls())
	}
}

func TestPipeline_ContextCancelStopsAtBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &stubClient{respond: func(call int, body string) (string, error) {
		if call == 0 {
			cancel()
		}
		return "ok", nil
	}}
	p := NewPipeline(client, PipelineConfig{})

	state, _ := p.Run(ctx, numberedDocument(3), testSettings(), nil, nil)
	if state.Status != models.RunCancelled {
		t.Errorf("Status = %s, want cancelled", state.Status)
	}
	if len(state.Results) != 1 || !state.Results[0].Succeeded {
		t.Errorf("Results = %+v, want the in-flight chunk to complete", state.Results)
	}
}

func TestPipeline_EmptyDocumentFails(t *testing.T) {
	client := &stubClient{}
	p := NewPipeline(client, PipelineConfig{})

	state, done := p.Run(context.Background(), models.NewDocument("blank.txt", " \n\t"), testSettings(), nil, nil)
	if state.Status != models.RunFailed {
		t.Errorf("Status = %s, want failed", state.Status)
	}
	if !errors.Is(done.Err, ErrEmptyDocument) {
		t.Errorf("Err = %v, want ErrEmptyDocument", done.Err)
	}
	if client.calls() != 0 {
		t.Errorf("inference calls = %d, want 0", client.calls())
	}
}

func TestPipeline_ProcessRejectsNoChunks(t *testing.T) {
	p := NewPipeline(&stubClient{}, PipelineConfig{})

	state, done := p.Process(context.Background(), nil, testSettings(), nil, nil)
	if state.Status != models.RunFailed || !errors.Is(done.Err, ErrEmptyDocument) {
		t.Errorf("Process(nil) = %s / %v, want failed / ErrEmptyDocument", state.Status, done.Err)
	}
}

func TestPipeline_BackendUnreachableAtFirstCall(t *testing.T) {
	client := &stubClient{respond: func(call int, body string) (string, error) {
		return "", unreachable()
	}}
	p := NewPipeline(client, PipelineConfig{})

	progressCalls := 0
	state, done := p.Run(context.Background(), numberedDocument(4), testSettings(), nil, func(models.ProgressEvent) {
		progressCalls++
	})

	if state.Status != models.RunFailed {
		t.Fatalf("Status = %s, want failed", state.Status)
	}
	if !errors.Is(done.Err, ErrBackendUnavailable) {
		t.Errorf("Err = %v, want ErrBackendUnavailable", done.Err)
	}
	if len(state.Results) != 0 || state.Completed != 0 {
		t.Errorf("no chunks should be processed, got %d results", len(state.Results))
	}
	if progressCalls != 0 {
		t.Errorf("progress events = %d, want 0", progressCalls)
	}
	if client.calls() != 1 {
		t.Errorf("inference calls = %d, want 1", client.calls())
	}
}

func TestPipeline_UnreachableAfterSuccessIsAbsorbed(t *testing.T) {
	client := &stubClient{respond: func(call int, body string) (string, error) {
		if call == 0 {
			return "ok", nil
		}
		return "", unreachable()
	}}
	p := NewPipeline(client, PipelineConfig{})

	state, _ := p.Run(context.Background(), numberedDocument(3), testSettings(), nil, nil)
	if state.Status != models.RunCompleted {
		t.Fatalf("Status = %s, want completed", state.Status)
	}
	if got := state.FailedIndices(); len(got) != 2 {
		t.Errorf("FailedIndices() = %v, want 2 failures", got)
	}
}

func TestPipeline_PreflightFailure(t *testing.T) {
	client := &stubClient{pingErr: unreachable()}
	p := NewPipeline(client, PipelineConfig{Preflight: true})

	state, done := p.Run(context.Background(), numberedDocument(2), testSettings(), nil, nil)
	if !client.pinged {
		t.Error("Ping was not called")
	}
	if state.Status != models.RunFailed || !errors.Is(done.Err, ErrBackendUnavailable) {
		t.Errorf("Run() = %s / %v, want failed / ErrBackendUnavailable", state.Status, done.Err)
	}
	if client.calls() != 0 {
		t.Errorf("inference calls = %d, want 0", client.calls())
	}
}

func TestPipeline_OversizePolicy(t *testing.T) {
	doc := models.NewDocument("x", "# Short\nabc\n# Long\n"+strings.Repeat("y", 50))

	tests := []struct {
		name      string
		policy    OversizePolicy
		wantCalls int
		wantFail  bool
	}{
		{"allow sends anyway", OversizeAllow, 2, false},
		{"reject falls back", OversizeReject, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubClient{}
			p := NewPipeline(client, PipelineConfig{MaxChunkChars: 10, Oversize: tt.policy})

			state, _ := p.Run(context.Background(), doc, testSettings(), nil, nil)
			if state.Status != models.RunCompleted {
				t.Fatalf("Status = %s, want completed", state.Status)
			}
			if client.calls() != tt.wantCalls {
				t.Errorf("inference calls = %d, want %d", client.calls(), tt.wantCalls)
			}
			if failed := !state.Results[1].Succeeded; failed != tt.wantFail {
				t.Errorf("long chunk failed = %v, want %v", failed, tt.wantFail)
			}
			if tt.wantFail && !strings.Contains(state.Results[1].ErrorDetail, ErrChunkTooLarge.Error()) {
				t.Errorf("ErrorDetail = %q", state.Results[1].ErrorDetail)
			}
		})
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	newClient := func() *stubClient {
		return &stubClient{respond: func(call int, body string) (string, error) {
			if call%3 == 1 {
				return "", errors.New("flaky")
			}
			return strings.ToUpper(body), nil
		}}
	}
	doc := numberedDocument(6)

	first, _ := NewPipeline(newClient(), PipelineConfig{}).Run(context.Background(), doc, testSettings(), nil, nil)
	second, _ := NewPipeline(newClient(), PipelineConfig{}).Run(context.Background(), doc, testSettings(), nil, nil)

	if len(first.Results) != len(second.Results) {
		t.Fatalf("result counts differ: %d vs %d", len(first.Results), len(second.Results))
	}
	for i := range first.Results {
		if first.Results[i] != second.Results[i] {
			t.Errorf("result %d differs: %+v vs %+v", i, first.Results[i], second.Results[i])
		}
	}
}

type recorderFunc func(*models.RunState) error

func (f recorderFunc) RecordRun(state *models.RunState) error { return f(state) }

func TestPipeline_RecordsHistory(t *testing.T) {
	var recorded *models.RunState
	p := NewPipeline(&stubClient{}, PipelineConfig{Recorder: recorderFunc(func(s *models.RunState) error {
		recorded = s
		return errors.New("disk full") // must not affect the run
	})})

	state, _ := p.Run(context.Background(), numberedDocument(2), testSettings(), nil, nil)
	if recorded == nil || recorded.RunID != state.RunID {
		t.Fatal("recorder did not receive the run state")
	}
	if state.Status != models.RunCompleted {
		t.Errorf("Status = %s, want completed", state.Status)
	}
	if recorded.FinishedAt.IsZero() {
		t.Error("recorded state should be finished")
	}
}

// gatedClient blocks every call until released
type gatedClient struct {
	stubClient
	started chan struct{}
	release chan struct{}
}

func newGatedClient() *gatedClient {
	return &gatedClient{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gatedClient) Infer(ctx context.Context, prompt string, cfg llm.SamplingConfig) (string, error) {
	g.started <- struct{}{}
	<-g.release
	return g.stubClient.Infer(ctx, prompt, cfg)
}

func TestPipeline_StartDeliversProgressThenTerminal(t *testing.T) {
	p := NewPipeline(&stubClient{}, PipelineConfig{})

	run := p.Start(context.Background(), numberedDocument(3), testSettings())
	if run.ID() == "" {
		t.Error("run ID should be assigned before the run starts")
	}

	var events []models.ProgressEvent
	for ev := range run.Progress() {
		events = append(events, ev)
	}

	select {
	case done := <-run.Done():
		if done.Status != models.RunCompleted {
			t.Errorf("Status = %s, want completed", done.Status)
		}
		if done.RunID != run.ID() {
			t.Errorf("RunID = %q, want %q", done.RunID, run.ID())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}

	if len(events) != 3 {
		t.Errorf("len(events) = %d, want 3", len(events))
	}
	if run.State() == nil || run.State().Completed != 3 {
		t.Errorf("State() = %+v", run.State())
	}
}

func TestPipeline_CancelDoesNotPreemptInFlightCall(t *testing.T) {
	client := newGatedClient()
	p := NewPipeline(client, PipelineConfig{})

	run := p.Start(context.Background(), numberedDocument(4), testSettings())

	<-client.started
	run.RequestCancel()
	close(client.release)

	var done models.TerminalEvent
	select {
	case done = <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}

	if done.Status != models.RunCancelled {
		t.Fatalf("Status = %s, want cancelled", done.Status)
	}
	if len(done.Results) != 1 || !done.Results[0].Succeeded {
		t.Errorf("Results = %+v, want the in-flight chunk completed", done.Results)
	}
	if client.calls() != 1 {
		t.Errorf("inference calls = %d, want 1", client.calls())
	}
}

func TestPipeline_StartSnapshotsSettings(t *testing.T) {
	client := newGatedClient()
	p := NewPipeline(client, PipelineConfig{})

	settings := testSettings()
	run := p.Start(context.Background(), numberedDocument(2), settings)

	<-client.started
	settings.Prompt.Examples[0].Original = "MUTATED"
	settings.Prompt.Instruction = "MUTATED"
	close(client.release)
	<-run.Done()

	for _, prompt := range client.prompts {
		if strings.Contains(prompt, "MUTATED") {
			t.Error("running pipeline observed a configuration edit")
		}
	}
}

func TestPipeline_StartWithEmptyDocument(t *testing.T) {
	p := NewPipeline(&stubClient{}, PipelineConfig{})

	run := p.Start(context.Background(), models.NewDocument("empty", ""), testSettings())
	for range run.Progress() {
		t.Error("no progress expected for an empty document")
	}
	done := <-run.Done()
	if done.Status != models.RunFailed || !errors.Is(done.Err, ErrEmptyDocument) {
		t.Errorf("done = %s / %v, want failed / ErrEmptyDocument", done.Status, done.Err)
	}
}

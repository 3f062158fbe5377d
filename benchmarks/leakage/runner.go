// ABOUTME: Runner executes leakage scenarios through the anonymization pipeline
// ABOUTME: Collects per-scenario scores and exports them as JSON
package leakage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harper/anonymizer/internal/core"
	"github.com/harper/anonymizer/internal/models"
)

// Runner executes benchmark scenarios
type Runner struct {
	pipeline *core.Pipeline
	settings core.Settings
	metrics  *MetricsCalculator
	out      io.Writer
	verbose  bool
}

// NewRunner creates a runner around a configured pipeline and run settings
func NewRunner(pipeline *core.Pipeline, settings core.Settings, out io.Writer, verbose bool) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		pipeline: pipeline,
		settings: settings,
		metrics:  NewMetricsCalculator(),
		out:      out,
		verbose:  verbose,
	}
}

// RunScenario anonymizes one scenario document and scores the output
func (r *Runner) RunScenario(ctx context.Context, scenario Scenario) Result {
	if r.verbose {
		fmt.Fprintf(r.out, "=== %s: %s ===\n", scenario.ID, scenario.Name)
	}

	state, done := r.pipeline.Run(ctx, models.NewDocument(scenario.ID+".md", scenario.Document), r.settings, nil, nil)
	if done.Status != models.RunCompleted {
		reason := fmt.Sprintf("run ended %s", done.Status)
		if done.Err != nil {
			reason = done.Err.Error()
		}
		return Result{
			ScenarioID:     scenario.ID,
			ScenarioName:   scenario.Name,
			LeakageRate:    1,
			FailedSections: []int{},
			Status:         "FAIL",
			ErrorMessage:   reason,
		}
	}

	result := r.metrics.Evaluate(scenario, done.FinalText, state.FailedIndices())
	result.Details["duration_ms"] = state.Duration().Milliseconds()

	if r.verbose {
		fmt.Fprintf(r.out, "%s\n\n", done.FinalText)
	}
	return result
}

// RunAll runs every scenario in order
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) []Result {
	results := make([]Result, 0, len(scenarios))
	for _, s := range scenarios {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.RunScenario(ctx, s))
	}
	return results
}

// Summary aggregates results for export
type Summary struct {
	Timestamp   string   `json:"timestamp"`
	Backend     string   `json:"backend,omitempty"`
	Model       string   `json:"model,omitempty"`
	TotalTests  int      `json:"total_tests"`
	Passed      int      `json:"passed"`
	Failed      int      `json:"failed"`
	MeanLeakage float64  `json:"mean_leakage"`
	Results     []Result `json:"results"`
}

// Summarize counts passes and averages leakage
func Summarize(results []Result, backend, model string) Summary {
	s := Summary{
		Timestamp:  time.Now().Format(time.RFC3339),
		Backend:    backend,
		Model:      model,
		TotalTests: len(results),
		Results:    results,
	}
	var leakage float64
	for _, res := range results {
		if res.Status == "PASS" {
			s.Passed++
		} else {
			s.Failed++
		}
		leakage += res.LeakageRate
	}
	if len(results) > 0 {
		s.MeanLeakage = leakage / float64(len(results))
	}
	return s
}

// ExportResults writes the summary as indented JSON
func ExportResults(summary Summary, outputPath string) error {
	jsonData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}

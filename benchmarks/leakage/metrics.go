// ABOUTME: Leakage metrics comparing anonymized output against scenario ground truth
// ABOUTME: Deterministic string checks, no model-graded scoring
package leakage

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const (
	// MaxLeakage is the highest leakage rate that still passes
	MaxLeakage = 0.0
	// MinPreservation is the lowest preservation rate that still passes
	MinPreservation = 0.5
)

// MetricsCalculator scores anonymized output
type MetricsCalculator struct{}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// CalculateLeakage returns the fraction of identifiers still present (0.0 is perfect)
// and the identifiers found. Matching is case-insensitive.
func (m *MetricsCalculator) CalculateLeakage(output string, identifiers []string) (float64, []string) {
	if len(identifiers) == 0 {
		return 0, nil
	}
	outputUpper := strings.ToUpper(output)
	leaked := lo.Filter(identifiers, func(id string, _ int) bool {
		return strings.Contains(outputUpper, strings.ToUpper(id))
	})
	return float64(len(leaked)) / float64(len(identifiers)), leaked
}

// CalculatePreservation returns the fraction of non-identifying words kept (1.0 is perfect)
// and the words that went missing
func (m *MetricsCalculator) CalculatePreservation(output string, preserved []string) (float64, []string) {
	if len(preserved) == 0 {
		return 1, nil
	}
	outputLower := strings.ToLower(output)
	missing := lo.Reject(preserved, func(word string, _ int) bool {
		return strings.Contains(outputLower, strings.ToLower(word))
	})
	return float64(len(preserved)-len(missing)) / float64(len(preserved)), missing
}

// HeadersIntact reports whether every header line appears verbatim on its own line
func (m *MetricsCalculator) HeadersIntact(output string, headers []string) bool {
	lines := lo.Map(strings.Split(output, "\n"), func(l string, _ int) string {
		return strings.TrimRight(l, "\r")
	})
	return lo.Every(lines, headers)
}

// Evaluate scores one scenario's output
func (m *MetricsCalculator) Evaluate(scenario Scenario, output string, failedSections []int) Result {
	leakage, leaked := m.CalculateLeakage(output, scenario.GroundTruth.Identifiers)
	preservation, missing := m.CalculatePreservation(output, scenario.GroundTruth.Preserved)
	headers := m.HeadersIntact(output, scenario.GroundTruth.Headers)

	status := "FAIL"
	if leakage <= MaxLeakage && preservation >= MinPreservation && headers {
		status = "PASS"
	}

	if failedSections == nil {
		failedSections = []int{}
	}

	return Result{
		ScenarioID:       scenario.ID,
		ScenarioName:     scenario.Name,
		LeakageRate:      leakage,
		PreservationRate: preservation,
		HeadersIntact:    headers,
		FailedSections:   failedSections,
		Status:           status,
		Details: map[string]interface{}{
			"leaked":           leaked,
			"missing":          missing,
			"leakage_detail":   fmt.Sprintf("%d of %d identifiers leaked", len(leaked), len(scenario.GroundTruth.Identifiers)),
			"output_preview":   output[:min(200, len(output))],
			"identifier_count": len(scenario.GroundTruth.Identifiers),
		},
	}
}

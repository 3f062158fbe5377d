// ABOUTME: PromptBuilder assembles few-shot anonymization prompts for one chunk
// ABOUTME: Also parses the legacy free-text "Original:/De-identified:" example format
package core

import (
	"strings"

	"github.com/harper/anonymizer/internal/models"
)

const (
	originalMarker     = "Original:"
	deidentifiedMarker = "De-identified:"
)

// PromptBuilder renders instruction, examples, and chunk text into a single prompt
type PromptBuilder struct{}

// NewPromptBuilder creates a new PromptBuilder
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// Build concatenates the instruction, every example in order, and the chunk body under a
// final Original marker awaiting completion. Examples are never filtered or truncated.
func (pb *PromptBuilder) Build(instruction string, examples []models.FewShotExample, body string) string {
	var sb strings.Builder

	if instruction = strings.TrimSpace(instruction); instruction != "" {
		sb.WriteString(instruction)
		sb.WriteString("\n\n")
	}

	for _, ex := range examples {
		sb.WriteString(originalMarker + " " + ex.Original + "\n")
		sb.WriteString(deidentifiedMarker + " " + ex.Deidentified + "\n\n")
	}

	sb.WriteString(originalMarker + " " + body + "\n")
	sb.WriteString(deidentifiedMarker + " ")

	return sb.String()
}

// ParseExamples reads pairs written as "Original: ..." / "De-identified: ..." lines.
// Continuation lines are appended to the current field; an Original without a matching
// De-identified line is dropped.
func ParseExamples(text string) []models.FewShotExample {
	var (
		examples []models.FewShotExample
		current  *models.FewShotExample
		field    *string
	)

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, originalMarker):
			if current != nil && current.Deidentified != "" {
				examples = append(examples, *current)
			}
			current = &models.FewShotExample{Original: strings.TrimSpace(strings.TrimPrefix(trimmed, originalMarker))}
			field = &current.Original
		case strings.HasPrefix(trimmed, deidentifiedMarker):
			if current == nil {
				continue
			}
			current.Deidentified = strings.TrimSpace(strings.TrimPrefix(trimmed, deidentifiedMarker))
			field = &current.Deidentified
		case trimmed == "":
			field = nil
		default:
			if field != nil {
				*field += "\n" + trimmed
			}
		}
	}
	if current != nil && current.Deidentified != "" {
		examples = append(examples, *current)
	}

	return examples
}

// FormatExamples renders examples in the legacy free-text format accepted by ParseExamples
func FormatExamples(examples []models.FewShotExample) string {
	var sb strings.Builder
	for i, ex := range examples {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(originalMarker + " " + ex.Original + "\n")
		sb.WriteString(deidentifiedMarker + " " + ex.Deidentified + "\n")
	}
	return sb.String()
}

// ABOUTME: YAML export and import of few-shot example sets
// ABOUTME: Lets users share and version example sets outside the settings store
package storage

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harper/anonymizer/internal/models"
)

// ExportData is the YAML document written by `examples export`
type ExportData struct {
	Version     string                  `yaml:"version" json:"version"`
	ExportedAt  string                  `yaml:"exported_at" json:"exported_at"`
	Tool        string                  `yaml:"tool" json:"tool"`
	Instruction string                  `yaml:"instruction" json:"instruction"`
	Examples    []models.FewShotExample `yaml:"examples" json:"examples"`
}

// ExportExamples writes settings as YAML
func ExportExamples(w io.Writer, settings models.PromptSettings) error {
	data := ExportData{
		Version:     "1.0",
		ExportedAt:  time.Now().Format(time.RFC3339),
		Tool:        "anonymizer",
		Instruction: settings.Instruction,
		Examples:    settings.Examples,
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// ImportExamples reads a YAML export. A missing instruction keeps the default one.
func ImportExamples(r io.Reader) (models.PromptSettings, error) {
	var data ExportData
	if err := yaml.NewDecoder(r).Decode(&data); err != nil {
		return models.PromptSettings{}, fmt.Errorf("failed to decode YAML: %w", err)
	}

	settings := models.PromptSettings{
		Instruction: data.Instruction,
		Examples:    data.Examples,
	}
	if settings.Instruction == "" {
		settings.Instruction = models.DefaultInstruction
	}
	if len(settings.Examples) == 0 {
		return models.PromptSettings{}, fmt.Errorf("import contains no examples")
	}
	if err := ValidateSettings(settings); err != nil {
		return models.PromptSettings{}, err
	}
	return settings, nil
}

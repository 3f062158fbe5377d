// ABOUTME: Persistent prompt settings (instruction and few-shot examples)
// ABOUTME: JSON file store under XDG config with import of the legacy free-text format
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harper/anonymizer/internal/core"
	"github.com/harper/anonymizer/internal/models"
)

// SettingsVersion is written into every stored settings document
const SettingsVersion = 1

// ErrInvalidExample is returned when an example has an empty side
var ErrInvalidExample = errors.New("few-shot example needs both original and de-identified text")

// SettingsStore loads and saves prompt settings. Load returns the defaults when nothing
// has been saved yet.
type SettingsStore interface {
	Load() (models.PromptSettings, error)
	Save(settings models.PromptSettings) error
	Reset() error
}

// settingsDocument is the on-disk shape shared by the file and charm stores
type settingsDocument struct {
	Version     int                     `json:"version"`
	Instruction string                  `json:"instruction"`
	Examples    []models.FewShotExample `json:"examples"`
}

// legacyDocument is the desktop app's settings.json: examples as one free-text block
type legacyDocument struct {
	Examples string `json:"examples"`
}

// ValidateSettings rejects examples with an empty side
func ValidateSettings(settings models.PromptSettings) error {
	for i, ex := range settings.Examples {
		if strings.TrimSpace(ex.Original) == "" || strings.TrimSpace(ex.Deidentified) == "" {
			return fmt.Errorf("example %d: %w", i+1, ErrInvalidExample)
		}
	}
	return nil
}

// encodeSettings serializes settings into the current document format
func encodeSettings(settings models.PromptSettings) ([]byte, error) {
	return json.MarshalIndent(settingsDocument{
		Version:     SettingsVersion,
		Instruction: settings.Instruction,
		Examples:    settings.Examples,
	}, "", "  ")
}

// decodeSettings reads the current format, falling back to the legacy text format
func decodeSettings(data []byte) (models.PromptSettings, error) {
	var doc settingsDocument
	if err := json.Unmarshal(data, &doc); err == nil {
		settings := models.PromptSettings{Instruction: doc.Instruction, Examples: doc.Examples}
		if settings.Instruction == "" {
			settings.Instruction = models.DefaultInstruction
		}
		if settings.Examples == nil {
			settings.Examples = models.DefaultExamples()
		}
		return settings, nil
	}

	var legacy legacyDocument
	if err := json.Unmarshal(data, &legacy); err != nil {
		return models.PromptSettings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	return FromLegacyText(legacy.Examples), nil
}

// FromLegacyText converts a free-text example block into settings, using the default
// examples when the text holds no complete pair
func FromLegacyText(text string) models.PromptSettings {
	settings := models.DefaultPromptSettings()
	if examples := core.ParseExamples(text); len(examples) > 0 {
		settings.Examples = examples
	}
	return settings
}

// FileStore keeps settings in a JSON file
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store writing settings.json inside dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, "settings.json")}
}

// Path returns the settings file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the settings file, returning defaults if it does not exist
func (s *FileStore) Load() (models.PromptSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.DefaultPromptSettings(), nil
	}
	if err != nil {
		return models.PromptSettings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	return decodeSettings(data)
}

// Save writes settings atomically
func (s *FileStore) Save(settings models.PromptSettings) error {
	if err := ValidateSettings(settings); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encodeSettings(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// Reset removes the settings file so defaults apply again
func (s *FileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove settings: %w", err)
	}
	return nil
}

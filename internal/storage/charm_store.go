// ABOUTME: Prompt settings stored in Charm KV for syncing between machines
// ABOUTME: Same document format as the file store under a single settings key
package storage

import (
	"errors"
	"fmt"

	"github.com/harper/anonymizer/internal/charm"
	"github.com/harper/anonymizer/internal/models"
)

// KV is the subset of the charm client the settings store needs
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// CharmStore keeps settings under charm.SettingsKey()
type CharmStore struct {
	kv KV
}

// NewCharmStore wraps a charm client (or any KV)
func NewCharmStore(kv KV) *CharmStore {
	return &CharmStore{kv: kv}
}

// Load returns stored settings or the defaults
func (s *CharmStore) Load() (models.PromptSettings, error) {
	data, err := s.kv.Get(charm.SettingsKey())
	if errors.Is(err, charm.ErrNotFound) || (err == nil && data == nil) {
		return models.DefaultPromptSettings(), nil
	}
	if err != nil {
		return models.PromptSettings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	return decodeSettings(data)
}

// Save stores settings; the charm client syncs afterwards when auto-sync is on
func (s *CharmStore) Save(settings models.PromptSettings) error {
	if err := ValidateSettings(settings); err != nil {
		return err
	}
	data, err := encodeSettings(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return s.kv.Set(charm.SettingsKey(), data)
}

// Reset deletes stored settings
func (s *CharmStore) Reset() error {
	return s.kv.Delete(charm.SettingsKey())
}

// ABOUTME: Wires configuration into the inference client, stores, and pipeline
// ABOUTME: Shared by the CLI and the MCP server so both run the same stack
package app

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/harper/anonymizer/internal/charm"
	"github.com/harper/anonymizer/internal/config"
	"github.com/harper/anonymizer/internal/core"
	"github.com/harper/anonymizer/internal/llm"
	"github.com/harper/anonymizer/internal/storage"
	"github.com/harper/anonymizer/internal/storage/sqlite"
)

// App holds the long-lived components of one process
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Client   llm.Client
	Pipeline *core.Pipeline
	Settings storage.SettingsStore
	History  *sqlite.History // nil when history is disabled
}

// New builds every component from cfg
func New(cfg *config.Config, logger *log.Logger) (*App, error) {
	client, err := llm.New(cfg.LLMOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Backend, err)
	}

	// history opens first so a failure there leaves no charm client behind
	var history *sqlite.History
	if cfg.HistoryEnabled {
		history, err = OpenHistory(cfg)
		if err != nil {
			return nil, err
		}
	}

	settings, err := OpenSettings(cfg)
	if err != nil {
		if history != nil {
			_ = history.Close()
		}
		return nil, err
	}

	return Assemble(cfg, logger, client, settings, history), nil
}

// Assemble builds the pipeline around already constructed components
func Assemble(cfg *config.Config, logger *log.Logger, client llm.Client, settings storage.SettingsStore, history *sqlite.History) *App {
	// a nil *History must not become a non-nil recorder interface
	var recorder core.RunRecorder
	if history != nil {
		recorder = history
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Client:   client,
		Pipeline: core.NewPipeline(client, cfg.PipelineConfig(logger, recorder)),
		Settings: settings,
		History:  history,
	}
}

// OpenSettings returns the configured settings store
func OpenSettings(cfg *config.Config) (storage.SettingsStore, error) {
	switch cfg.SettingsBackend {
	case config.SettingsBackendCharm:
		charm.Configure(&charm.Config{Host: cfg.CharmHost, DBName: cfg.CharmDBName, AutoSync: cfg.AutoSync})
		client, err := charm.GetClient()
		if err != nil {
			return nil, fmt.Errorf("failed to open charm settings: %w", err)
		}
		return storage.NewCharmStore(client), nil
	default:
		return storage.NewFileStore(config.SettingsDir()), nil
	}
}

// OpenHistory opens the run history database under the XDG data directory
func OpenHistory(cfg *config.Config) (*sqlite.History, error) {
	path, err := config.HistoryPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve history path: %w", err)
	}
	history, err := sqlite.NewHistoryWithPath(path, cfg.Backend, cfg.ModelLabel())
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return history, nil
}

// RunSettings loads the stored prompt settings and combines them with configured sampling
func (a *App) RunSettings() (core.Settings, error) {
	prompt, err := a.Settings.Load()
	if err != nil {
		return core.Settings{}, err
	}
	return a.Config.RunSettings(prompt), nil
}

// Close releases the history database and the charm client
func (a *App) Close() error {
	var errs []error
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.Config.SettingsBackend == config.SettingsBackendCharm {
		charm.ResetGlobalClient()
	}
	return errors.Join(errs...)
}

// ABOUTME: Centralized configuration for the anonymizer CLI and MCP server
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"

	"github.com/harper/anonymizer/internal/core"
	"github.com/harper/anonymizer/internal/llm"
	"github.com/harper/anonymizer/internal/models"
)

// AppName names the XDG config and data directories
const AppName = "anonymizer"

const (
	// SettingsBackendFile keeps prompt settings in a local JSON file
	SettingsBackendFile = "file"
	// SettingsBackendCharm keeps prompt settings in a Charm KV store with optional cloud sync
	SettingsBackendCharm = "charm"
)

// Config holds all configuration for the anonymizer
type Config struct {
	// Inference backend
	Backend    string
	BaseURL    string
	Model      string
	APIKey     string
	LlamaBin   string
	LlamaModel string
	LlamaArgs  []string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// Sampling
	Temperature   float64
	TopP          float64
	RepeatPenalty float64
	MaxTokens     int
	KeepAlive     time.Duration

	// Pipeline
	HeaderDelimiter string
	MaxChunkChars   int
	OversizePolicy  string
	Preflight       bool
	PartialOutput   bool

	// Storage
	SettingsBackend string
	HistoryEnabled  bool

	// Charm settings
	CharmHost   string
	CharmDBName string
	AutoSync    bool

	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Backend:    getEnv("ANONYMIZER_BACKEND", llm.BackendOllama),
		BaseURL:    os.Getenv("ANONYMIZER_BASE_URL"),
		Model:      getEnv("ANONYMIZER_MODEL", llm.DefaultModel),
		APIKey:     os.Getenv("ANONYMIZER_API_KEY"),
		LlamaBin:   getEnv("ANONYMIZER_LLAMA_BINARY", llm.DefaultLlamaBinary),
		LlamaModel: os.Getenv("ANONYMIZER_LLAMA_MODEL"),
		LlamaArgs:  strings.Fields(os.Getenv("ANONYMIZER_LLAMA_ARGS")),
		Timeout:    getEnvDuration("ANONYMIZER_TIMEOUT", llm.DefaultTimeout),
		MaxRetries: getEnvInt("ANONYMIZER_MAX_RETRIES", 0),
		RetryDelay: getEnvDuration("ANONYMIZER_RETRY_DELAY", 2*time.Second),

		Temperature:   getEnvFloat("ANONYMIZER_TEMPERATURE", llm.DefaultTemperature),
		TopP:          getEnvFloat("ANONYMIZER_TOP_P", llm.DefaultTopP),
		RepeatPenalty: getEnvFloat("ANONYMIZER_REPEAT_PENALTY", llm.DefaultRepeatPenalty),
		MaxTokens:     getEnvInt("ANONYMIZER_MAX_TOKENS", llm.DefaultMaxTokens),
		KeepAlive:     getEnvDuration("ANONYMIZER_KEEP_ALIVE", llm.DefaultKeepAlive),

		HeaderDelimiter: getEnv("ANONYMIZER_HEADER_DELIMITER", core.DefaultHeaderDelimiter),
		MaxChunkChars:   getEnvInt("ANONYMIZER_MAX_CHUNK_CHARS", 0),
		OversizePolicy:  getEnv("ANONYMIZER_OVERSIZE_POLICY", string(core.OversizeAllow)),
		Preflight:       getEnvBool("ANONYMIZER_PREFLIGHT", false),
		PartialOutput:   getEnvBool("ANONYMIZER_PARTIAL", false),

		SettingsBackend: getEnv("ANONYMIZER_SETTINGS_BACKEND", SettingsBackendFile),
		HistoryEnabled:  getEnvBool("ANONYMIZER_HISTORY", true),

		CharmHost:   os.Getenv("CHARM_HOST"),
		CharmDBName: getEnv("CHARM_DB", AppName),
		AutoSync:    getEnvBool("CHARM_AUTO_SYNC", false),

		LogLevel: getEnv("ANONYMIZER_LOG_LEVEL", "info"),
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if !slices.Contains(llm.Backends(), c.Backend) {
		return fmt.Errorf("ANONYMIZER_BACKEND must be one of %v, got %q", llm.Backends(), c.Backend)
	}
	if c.Backend == llm.BackendLlamaCpp && c.LlamaModel == "" {
		return fmt.Errorf("ANONYMIZER_LLAMA_MODEL is required for the %s backend", llm.BackendLlamaCpp)
	}
	if c.Backend != llm.BackendLlamaCpp && c.Model == "" {
		return fmt.Errorf("ANONYMIZER_MODEL must not be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("ANONYMIZER_TEMPERATURE must be 0-2, got %f", c.Temperature)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("ANONYMIZER_TOP_P must be in (0, 1], got %f", c.TopP)
	}
	if c.RepeatPenalty < 0 {
		return fmt.Errorf("ANONYMIZER_REPEAT_PENALTY must not be negative, got %f", c.RepeatPenalty)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("ANONYMIZER_MAX_TOKENS must not be negative, got %d", c.MaxTokens)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("ANONYMIZER_TIMEOUT must be positive, got %v", c.Timeout)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("ANONYMIZER_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if strings.TrimSpace(c.HeaderDelimiter) == "" {
		return fmt.Errorf("ANONYMIZER_HEADER_DELIMITER must not be blank")
	}
	if c.MaxChunkChars < 0 {
		return fmt.Errorf("ANONYMIZER_MAX_CHUNK_CHARS must not be negative, got %d", c.MaxChunkChars)
	}
	switch core.OversizePolicy(c.OversizePolicy) {
	case core.OversizeAllow, core.OversizeReject:
	default:
		return fmt.Errorf("ANONYMIZER_OVERSIZE_POLICY must be allow or reject, got %q", c.OversizePolicy)
	}
	switch c.SettingsBackend {
	case SettingsBackendFile, SettingsBackendCharm:
	default:
		return fmt.Errorf("ANONYMIZER_SETTINGS_BACKEND must be file or charm, got %q", c.SettingsBackend)
	}
	return nil
}

// LLMOptions returns the backend factory options
func (c *Config) LLMOptions() llm.Options {
	return llm.Options{
		Backend:    c.Backend,
		BaseURL:    c.BaseURL,
		Model:      c.Model,
		APIKey:     c.APIKey,
		LlamaBin:   c.LlamaBin,
		LlamaModel: c.LlamaModel,
		LlamaArgs:  c.LlamaArgs,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
		RetryDelay: c.RetryDelay,
	}
}

// Sampling returns the generation knobs sent with every chunk
func (c *Config) Sampling() llm.SamplingConfig {
	return llm.SamplingConfig{
		Temperature:   c.Temperature,
		TopP:          c.TopP,
		RepeatPenalty: c.RepeatPenalty,
		MaxTokens:     c.MaxTokens,
		KeepAlive:     c.KeepAlive,
	}
}

// PipelineConfig returns the structural pipeline settings
func (c *Config) PipelineConfig(logger *log.Logger, recorder core.RunRecorder) core.PipelineConfig {
	return core.PipelineConfig{
		HeaderDelimiter: c.HeaderDelimiter,
		MaxChunkChars:   c.MaxChunkChars,
		Oversize:        core.OversizePolicy(c.OversizePolicy),
		Preflight:       c.Preflight,
		Recorder:        recorder,
		Logger:          logger,
	}
}

// RunSettings combines the stored prompt settings with configured sampling
func (c *Config) RunSettings(prompt models.PromptSettings) core.Settings {
	return core.Settings{
		Prompt:          prompt,
		Sampling:        c.Sampling(),
		PartialAssembly: c.PartialOutput,
	}
}

// ModelLabel names the model for display and history
func (c *Config) ModelLabel() string {
	if c.Backend == llm.BackendLlamaCpp {
		return filepath.Base(c.LlamaModel)
	}
	return c.Model
}

// SettingsDir is where prompt settings live ($XDG_CONFIG_HOME/anonymizer)
func SettingsDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// HistoryPath returns the run history database path, creating its directory
func HistoryPath() (string, error) {
	return xdg.DataFile(filepath.Join(AppName, "history.db"))
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

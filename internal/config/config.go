// Package config provides configuration loading and validation for the CLI
// and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/diligence-engine/internal/types"
)

// Config represents the runtime configuration that can be loaded from a JSON
// file. All fields are optional; missing values use defaults or must be
// provided via CLI flags.
type Config struct {
	// Behavior
	SkipStageIDs []string `json:"skip_stage_ids,omitempty"` // Stage ids excluded from the run
	// ContinueOnError keeps the run going past a failed stage. A pointer so a
	// config file that omits the key falls back to the default instead of
	// silently flipping it to false.
	ContinueOnError *bool `json:"continue_on_error,omitempty"`
	MaxRetries      int      `json:"max_retries,omitempty" validate:"gte=0,lte=5"` // Extra attempts per stage
	GenRetries      int      `json:"gen_retries,omitempty" validate:"gte=0,lte=5"` // Corrective re-calls per generation
	CorrectionMode  string   `json:"correction_mode,omitempty" validate:"omitempty,oneof=strict lenient"`
	QuickScreen     bool     `json:"quick_screen,omitempty"` // Run the reduced stage subset

	// Integration
	APIKey       string `json:"api_key,omitempty"`       // Gemini API key
	TelemetryDSN string `json:"telemetry_dsn,omitempty"` // PostgreSQL connection URL for run records
	LogFile      string `json:"log_file,omitempty"`      // JSON log destination, stderr-only when empty
	Port         int    `json:"port,omitempty" validate:"gte=0,lte=65535"`
	Verbose      bool   `json:"verbose,omitempty"` // Print detailed debug information
}

var validate = validator.New()

func boolPtr(b bool) *bool { return &b }

// Defaults returns the configuration used when nothing is specified.
func Defaults() Config {
	return Config{
		ContinueOnError: boolPtr(true),
		MaxRetries:      1,
		GenRetries:      2,
		CorrectionMode:  "lenient",
		Port:            8080,
	}
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from
// defaults. Used to apply config file values beneath CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.TelemetryDSN == "" {
		result.TelemetryDSN = defaults.TelemetryDSN
	}
	if result.LogFile == "" {
		result.LogFile = defaults.LogFile
	}
	if result.CorrectionMode == "" {
		result.CorrectionMode = defaults.CorrectionMode
	}
	if result.MaxRetries == 0 {
		result.MaxRetries = defaults.MaxRetries
	}
	if result.GenRetries == 0 {
		result.GenRetries = defaults.GenRetries
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.ContinueOnError == nil {
		result.ContinueOnError = defaults.ContinueOnError
	}
	if len(result.SkipStageIDs) == 0 {
		result.SkipStageIDs = defaults.SkipStageIDs
	}

	return result
}

// ContinuePastFailures reports the effective continue_on_error setting.
// Unset means continue.
func (c *Config) ContinuePastFailures() bool {
	return c.ContinueOnError == nil || *c.ContinueOnError
}

// ValidateInput checks a pipeline input against its declared constraints
// before a run starts.
func ValidateInput(input *types.PipelineInput) error {
	if input == nil {
		return fmt.Errorf("input is nil")
	}
	if err := validate.Struct(input); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

// Package config loads oxidize settings from file, environment, and defaults.
package config

import "errors"

// Default retry and timeout knobs.
const (
	DefaultConsecutiveFailureThreshold = 10
	DefaultFunctionRetries             = 10
	DefaultLLMRetries                  = 3
	DefaultBuildTimeoutSeconds         = 300
	DefaultCheckpointInterval          = 1
	DefaultOracleModel                 = "gpt-4o"
)

// Config is the top-level configuration struct for oxidize.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Oracle OracleConfig `mapstructure:"oracle"`
	Run    RunConfig    `mapstructure:"run"`
	Scan   ScanConfig   `mapstructure:"scan"`
}

// OracleConfig selects the language model endpoint.
type OracleConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// RunConfig holds translation-run knobs.
type RunConfig struct {
	// ConsecutiveFailureThreshold parks a unit after this many fix attempts
	// in a row fail to build.
	ConsecutiveFailureThreshold int `mapstructure:"consecutive_failure_threshold"`

	// FunctionRetries bounds full restarts of a parked unit across runs.
	FunctionRetries int `mapstructure:"function_retries"`

	// LLMRetries bounds oracle attempts per single evaluation.
	LLMRetries int `mapstructure:"llm_retries"`

	// BuildTimeoutSeconds bounds one build/check subprocess.
	BuildTimeoutSeconds int `mapstructure:"build_timeout_seconds"`

	// CheckpointInterval is how many units between checkpoint saves.
	// Values below one save after every unit.
	CheckpointInterval int `mapstructure:"checkpoint_interval"`

	// CrateDir overrides the generated crate location. Empty picks a
	// sibling directory of the source root.
	CrateDir string `mapstructure:"crate_dir"`

	// MetricsAddr exposes run metrics over HTTP when non-empty.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// ScanConfig narrows which source files a scan considers.
type ScanConfig struct {
	Include  []string `mapstructure:"include"`
	Exclude  []string `mapstructure:"exclude"`
	MaxFiles int      `mapstructure:"max_files"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidFailureThreshold indicates the failure threshold is not positive.
	ErrInvalidFailureThreshold = errors.New("run.consecutive_failure_threshold must be positive")
	// ErrInvalidFunctionRetries indicates the function retry bound is negative.
	ErrInvalidFunctionRetries = errors.New("run.function_retries must be non-negative")
	// ErrInvalidLLMRetries indicates the oracle retry bound is not positive.
	ErrInvalidLLMRetries = errors.New("run.llm_retries must be positive")
	// ErrInvalidBuildTimeout indicates the build timeout is not positive.
	ErrInvalidBuildTimeout = errors.New("run.build_timeout_seconds must be positive")
	// ErrInvalidMaxFiles indicates the scan file cap is negative.
	ErrInvalidMaxFiles = errors.New("scan.max_files must be non-negative")
)

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Run.ConsecutiveFailureThreshold < 1 {
		return ErrInvalidFailureThreshold
	}

	if c.Run.FunctionRetries < 0 {
		return ErrInvalidFunctionRetries
	}

	if c.Run.LLMRetries < 1 {
		return ErrInvalidLLMRetries
	}

	if c.Run.BuildTimeoutSeconds < 1 {
		return ErrInvalidBuildTimeout
	}

	if c.Scan.MaxFiles < 0 {
		return ErrInvalidMaxFiles
	}

	return nil
}

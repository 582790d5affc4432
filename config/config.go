package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config holds engine-wide defaults for workflows, steps and groups
	Config struct {
		Workflow WorkflowConfig `yaml:"workflow"`
		Step     StepConfig     `yaml:"step"`
		Group    GroupConfig    `yaml:"group"`
		LogLevel string         `yaml:"log_level"`
	}

	// WorkflowConfig is the whole-run retry and failure policy
	WorkflowConfig struct {
		Retries         int           `yaml:"retries"`
		RetryDelay      time.Duration `yaml:"retry_delay"`
		ContinueOnError bool          `yaml:"continue_on_error"`
	}

	// StepConfig holds defaults applied to every step
	StepConfig struct {
		Retries       int           `yaml:"retries"`
		RetryDelay    time.Duration `yaml:"retry_delay"`
		RetryStrategy string        `yaml:"retry_strategy"`
		Timeout       time.Duration `yaml:"timeout"`
	}

	// GroupConfig holds defaults applied to every parallel group
	GroupConfig struct {
		MaxConcurrency int `yaml:"max_concurrency"`
	}
)

const (
	DefaultWorkflowRetries    = 1
	DefaultWorkflowRetryDelay = 60 * time.Second
	DefaultStepRetries        = 3
	DefaultStepRetryDelay     = 30 * time.Second
	DefaultMaxConcurrency     = 5
	DefaultLogLevel           = "info"

	RetryStrategyFixed       = "fixed"
	RetryStrategyLinear      = "linear"
	RetryStrategyExponential = "exponential"

	MaxRetries        = 1000
	MaxConcurrency    = 10_000
	MaxRetryDelay     = 24 * time.Hour
	MaxStepTimeout    = 7 * 24 * time.Hour
	EnvPrefix         = "STEPFLOW_"
	envWorkflowPrefix = EnvPrefix + "WORKFLOW_"
	envStepPrefix     = EnvPrefix + "STEP_"
)

var (
	ErrInvalidWorkflowRetries = errors.New("workflow retries must be positive")
	ErrInvalidStepRetries     = errors.New("step retries must be positive")
	ErrNegativeDelay          = errors.New("retry delay cannot be negative")
	ErrNegativeTimeout        = errors.New("step timeout cannot be negative")
	ErrInvalidConcurrency     = errors.New("max concurrency must be positive")
	ErrInvalidRetryStrategy   = errors.New("invalid retry strategy")
	ErrInvalidLogLevel        = errors.New("invalid log level")
)

// NewDefaultConfig creates a configuration matching the engine defaults
func NewDefaultConfig() *Config {
	return &Config{
		Workflow: WorkflowConfig{
			Retries:    DefaultWorkflowRetries,
			RetryDelay: DefaultWorkflowRetryDelay,
		},
		Step: StepConfig{
			Retries:       DefaultStepRetries,
			RetryDelay:    DefaultStepRetryDelay,
			RetryStrategy: RetryStrategyFixed,
		},
		Group: GroupConfig{
			MaxConcurrency: DefaultMaxConcurrency,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Load returns the defaults overlaid with path (when non-empty) and then the
// environment, validated
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays values from a YAML file. Keys missing from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return c.LoadYAML(raw)
}

// LoadYAML overlays values from YAML bytes
func (c *Config) LoadYAML(raw []byte) error {
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadFromEnv populates configuration values from STEPFLOW_* environment
// variables. Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	if lvl := os.Getenv(EnvPrefix + "LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
	if strategy := os.Getenv(envStepPrefix + "RETRY_STRATEGY"); strategy != "" {
		c.Step.RetryStrategy = strategy
	}

	if err := loadEnvBool(
		envWorkflowPrefix+"CONTINUE_ON_ERROR", &c.Workflow.ContinueOnError,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		envWorkflowPrefix+"RETRIES", &c.Workflow.Retries, 0, MaxRetries,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		envWorkflowPrefix+"RETRY_DELAY", &c.Workflow.RetryDelay, MaxRetryDelay,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		envStepPrefix+"RETRIES", &c.Step.Retries, 0, MaxRetries,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		envStepPrefix+"RETRY_DELAY", &c.Step.RetryDelay, MaxRetryDelay,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		envStepPrefix+"TIMEOUT", &c.Step.Timeout, MaxStepTimeout,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		EnvPrefix+"GROUP_MAX_CONCURRENCY", &c.Group.MaxConcurrency, 0, MaxConcurrency,
	); err != nil {
		return err
	}

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Workflow.Retries <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkflowRetries, c.Workflow.Retries)
	}

	if c.Step.Retries <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidStepRetries, c.Step.Retries)
	}

	if c.Workflow.RetryDelay < 0 || c.Step.RetryDelay < 0 {
		return ErrNegativeDelay
	}

	if c.Step.Timeout < 0 {
		return ErrNegativeTimeout
	}

	if c.Group.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.Group.MaxConcurrency)
	}

	switch strings.ToLower(c.Step.RetryStrategy) {
	case "", RetryStrategyFixed, RetryStrategyLinear, RetryStrategyExponential:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidRetryStrategy, c.Step.RetryStrategy)
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt(key string, dst *int, min, max int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if v <= min || v > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, v, min+1, max)
	}
	*dst = v
	return nil
}

func loadEnvDuration(key string, dst *time.Duration, max time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if v < 0 || v > max {
		return fmt.Errorf("invalid %s: %s out of range [0, %s]", key, v, max)
	}
	*dst = v
	return nil
}

func loadEnvBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = v
	return nil
}

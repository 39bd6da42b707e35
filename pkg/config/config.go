// Package config loads and validates the YAML configuration for the lore
// activation engine: matching defaults, budget and recursion limits, and
// logging output.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/loreweave/loreweave/pkg/engine"
	"github.com/loreweave/loreweave/pkg/logging"
)

// Config is the complete file-backed configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine,omitempty" validate:"omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// EngineConfig holds evaluation defaults and limits.
type EngineConfig struct {
	// ScanDepth is the default message window; 0 scans everything.
	ScanDepth int `yaml:"scan_depth" validate:"min=0"`

	// CaseSensitive is the default for entries that don't set their own.
	CaseSensitive bool `yaml:"case_sensitive"`

	// MatchWholeWords is the default word-boundary setting.
	MatchWholeWords bool `yaml:"match_whole_words"`

	// UseGroupScoring is the default for score-based group resolution.
	UseGroupScoring bool `yaml:"use_group_scoring"`

	// TokenBudget caps selected content; 0 means unlimited.
	TokenBudget int `yaml:"token_budget" validate:"min=0"`

	// MaxRecursionSteps caps content-producing recursion passes; 0 means
	// the engine's hard cap.
	MaxRecursionSteps int `yaml:"max_recursion_steps" validate:"min=0,max=10"`

	// MinActivations keeps widening the scan window until this many
	// entries are selected.
	MinActivations int `yaml:"min_activations" validate:"min=0"`

	// MinActivationsDepthMax bounds the widened window.
	MinActivationsDepthMax int `yaml:"min_activations_depth_max" validate:"min=0"`

	// InsertionStrategy orders output positions.
	InsertionStrategy string `yaml:"insertion_strategy" validate:"omitempty,oneof=sorted_evenly character_lore_first global_lore_first"`
}

// LoggingConfig controls the log output.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error fatal"`
	File  string `yaml:"file,omitempty"`
	Color bool   `yaml:"color"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			ScanDepth:         2,
			InsertionStrategy: string(engine.StrategySortedEvenly),
		},
		Logging: LoggingConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load reads and validates a YAML configuration file. Fields absent from
// the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs struct validation and returns a readable error listing
// every failing field.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if ok := asValidationErrors(err, &verrs); !ok {
		return fmt.Errorf("config validation failed: %w", err)
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(messages, "; "))
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// EngineDefaults converts the config into the engine's defaults struct.
func (c *Config) EngineDefaults() engine.Defaults {
	return engine.Defaults{
		ScanDepth:       c.Engine.ScanDepth,
		CaseSensitive:   c.Engine.CaseSensitive,
		MatchWholeWords: c.Engine.MatchWholeWords,
		UseGroupScoring: c.Engine.UseGroupScoring,
	}
}

// Strategy returns the configured insertion strategy, defaulting to
// sorted_evenly.
func (c *Config) Strategy() engine.InsertionStrategy {
	if c.Engine.InsertionStrategy == "" {
		return engine.StrategySortedEvenly
	}
	return engine.InsertionStrategy(c.Engine.InsertionStrategy)
}

// TokenBudget returns the configured budget, nil when unlimited.
func (c *Config) TokenBudget() *int {
	if c.Engine.TokenBudget <= 0 {
		return nil
	}
	v := c.Engine.TokenBudget
	return &v
}

// LogSeverity maps the configured level onto the logging package's scale.
func (c *Config) LogSeverity() logging.Severity {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return logging.DEBUG
	case "warn":
		return logging.WARN
	case "error":
		return logging.ERROR
	case "fatal":
		return logging.FATAL
	default:
		return logging.INFO
	}
}

// Package config holds all counsel engine configuration: selection
// thresholds, decay factors, token ceilings, persistence and generator
// settings. Values load from YAML over documented defaults, with a small
// set of COUNSEL_* environment overrides for deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all counsel configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Selector    SelectorConfig    `yaml:"selector"`
	Composition CompositionConfig `yaml:"composition"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	Context     ContextConfig     `yaml:"context"`
	Store       StoreConfig       `yaml:"store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SelectorConfig configures the pattern selection pipeline.
type SelectorConfig struct {
	// Minimum affinity a behavior must have on its own dominant
	// composition dimension to survive scoring.
	MinDominantAffinity float64 `yaml:"min_dominant_affinity"`

	// Maximum patterns returned per turn.
	MaxSelected int `yaml:"max_selected"`

	// Consecutive fires of the same pattern before the repetition
	// trigger considers the conversation looping.
	RepetitionThreshold int `yaml:"repetition_threshold"`

	// Turns without any knowledge-state change before the stuck
	// trigger fires.
	StuckThreshold int `yaml:"stuck_threshold"`
}

// CompositionConfig configures the situational composition updater.
type CompositionConfig struct {
	// Per-dimension multiplicative decay applied each turn.
	// Error recovery decays fastest so resolved confusion quickly
	// cedes priority; education decays slowest.
	DecayFactors map[string]float64 `yaml:"decay_factors"`

	// Upper bound on a single reinforcement increment.
	ReinforceCap float64 `yaml:"reinforce_cap"`
}

// KnowledgeConfig configures per-turn knowledge-state decay.
type KnowledgeConfig struct {
	FrustrationDecay float64 `yaml:"frustration_decay"`
	ConfusionDecay   float64 `yaml:"confusion_decay"`
}

// ContextConfig configures the context assembler and token budget.
type ContextConfig struct {
	// WarnTokens is the soft ceiling: payloads at or above it pass but
	// emit a structured warning naming the caller.
	WarnTokens int `yaml:"warn_tokens"`

	// RejectTokens is the hard ceiling: payloads at or above it are
	// refused with an oversized-context error. Fail closed.
	RejectTokens int `yaml:"reject_tokens"`

	// MaxFieldChars bounds any single knowledge value; longer values
	// are replaced with an explicit truncation marker.
	MaxFieldChars int `yaml:"max_field_chars"`

	// HistoryTurns is how many recent turns the payload carries.
	HistoryTurns int `yaml:"history_turns"`
}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// GeneratorConfig configures the external text generator collaborator.
type GeneratorConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "counsel",
		Version: "1.0.0",

		Selector: SelectorConfig{
			MinDominantAffinity: 0.3,
			MaxSelected:         2,
			RepetitionThreshold: 3,
			StuckThreshold:      4,
		},

		Composition: CompositionConfig{
			DecayFactors: map[string]float64{
				"discovery":      0.92,
				"education":      0.95,
				"assessment":     0.90,
				"recommendation": 0.90,
				"navigation":     0.85,
				"error_recovery": 0.70,
				"clarification":  0.80,
				"rapport":        0.85,
			},
			ReinforceCap: 0.40,
		},

		Knowledge: KnowledgeConfig{
			FrustrationDecay: 0.80,
			ConfusionDecay:   0.75,
		},

		Context: ContextConfig{
			WarnTokens:    2400,
			RejectTokens:  3200,
			MaxFieldChars: 280,
			HistoryTurns:  3,
		},

		Store: StoreConfig{
			DatabasePath: "counsel.db",
		},

		Generator: GeneratorConfig{
			BaseURL: "http://localhost:8080/v1/generate",
			Model:   "default",
			Timeout: "60s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file, layered over defaults.
// A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.applyEnvOverrides()
				return cfg, cfg.Validate()
			}
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// applyEnvOverrides applies COUNSEL_* environment variables on top of
// file/default values. Only deployment-level knobs are overridable.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COUNSEL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("COUNSEL_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("COUNSEL_GENERATOR_URL"); v != "" {
		c.Generator.BaseURL = v
	}
	if v := os.Getenv("COUNSEL_GENERATOR_KEY"); v != "" {
		c.Generator.APIKey = v
	}
	if v := os.Getenv("COUNSEL_REJECT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Context.RejectTokens = n
		}
	}
}

// Validate checks configuration invariants. Called at load; failures are
// fatal at startup.
func (c *Config) Validate() error {
	if c.Selector.MaxSelected < 1 || c.Selector.MaxSelected > 2 {
		return fmt.Errorf("selector.max_selected must be 1 or 2, got %d", c.Selector.MaxSelected)
	}
	if c.Selector.MinDominantAffinity < 0 || c.Selector.MinDominantAffinity > 1 {
		return fmt.Errorf("selector.min_dominant_affinity must be in [0,1], got %f", c.Selector.MinDominantAffinity)
	}
	for dim, f := range c.Composition.DecayFactors {
		if f <= 0 || f > 1 {
			return fmt.Errorf("composition.decay_factors[%s] must be in (0,1], got %f", dim, f)
		}
	}
	if c.Composition.ReinforceCap <= 0 || c.Composition.ReinforceCap > 1 {
		return fmt.Errorf("composition.reinforce_cap must be in (0,1], got %f", c.Composition.ReinforceCap)
	}
	if c.Knowledge.FrustrationDecay <= 0 || c.Knowledge.FrustrationDecay >= 1 {
		return fmt.Errorf("knowledge.frustration_decay must be in (0,1), got %f", c.Knowledge.FrustrationDecay)
	}
	if c.Knowledge.ConfusionDecay <= 0 || c.Knowledge.ConfusionDecay >= 1 {
		return fmt.Errorf("knowledge.confusion_decay must be in (0,1), got %f", c.Knowledge.ConfusionDecay)
	}
	if c.Context.WarnTokens <= 0 || c.Context.RejectTokens <= 0 {
		return fmt.Errorf("context token ceilings must be positive")
	}
	if c.Context.WarnTokens >= c.Context.RejectTokens {
		return fmt.Errorf("context.warn_tokens (%d) must be below context.reject_tokens (%d)",
			c.Context.WarnTokens, c.Context.RejectTokens)
	}
	if c.Context.MaxFieldChars <= 0 {
		return fmt.Errorf("context.max_field_chars must be positive")
	}
	if c.Context.HistoryTurns < 0 {
		return fmt.Errorf("context.history_turns must be >= 0")
	}
	return nil
}

// Package config defines the configuration schema for ctxbudget.
//
// YAML keys use camelCase. Every field has a default so a partial file, or
// no file at all, yields a usable configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/crystaldolphin/ctxbudget/internal/compaction"
	"github.com/crystaldolphin/ctxbudget/internal/providers"
	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// ModelConfig names the chat model used for summaries.
type ModelConfig struct {
	Name string `yaml:"name"`
	// ContextTokens overrides the context window looked up from the model
	// name. Zero means look it up.
	ContextTokens int `yaml:"contextTokens,omitempty"`
}

// ProviderConfig holds credentials for the LLM provider.
type ProviderConfig struct {
	Name         string            `yaml:"name,omitempty"`
	APIKey       string            `yaml:"apiKey,omitempty"`
	APIBase      string            `yaml:"apiBase,omitempty"`
	ExtraHeaders map[string]string `yaml:"extraHeaders,omitempty"`
	MaxRetries   int               `yaml:"maxRetries"`
	TimeoutSec   int               `yaml:"timeoutSeconds"`
}

// CompactionConfig mirrors compaction.Config in YAML form.
type CompactionConfig struct {
	RoundsToKeep     int      `yaml:"roundsToKeep"`
	TargetFraction   float64  `yaml:"targetFraction"`
	SavingsThreshold float64  `yaml:"savingsThreshold"`
	MaxAttempts      int      `yaml:"maxAttempts"`
	NoiseTools       []string `yaml:"noiseTools"`
	AllowFullPass    bool     `yaml:"allowFullPass"`
	IdentityPattern  string   `yaml:"identityPattern,omitempty"`
	SummaryMaxTokens int      `yaml:"summaryMaxTokens"`
}

// StorageConfig selects where conversation logs live.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

// SweepConfig drives the background compaction sweep.
type SweepConfig struct {
	Schedule    string `yaml:"schedule"`
	Concurrency int    `yaml:"concurrency"`
	Archive     bool   `yaml:"archive"`
}

// EmbeddingConfig tunes the chunking embedder.
type EmbeddingConfig struct {
	Model           string  `yaml:"model,omitempty"`
	TokenBudget     int     `yaml:"tokenBudget"`
	ReductionFactor float64 `yaml:"reductionFactor"`
	Concurrency     int     `yaml:"concurrency"`
}

// Config is the root configuration object, loaded from ~/.ctxbudget/config.yaml.
type Config struct {
	Workspace  string           `yaml:"workspace"`
	Model      ModelConfig      `yaml:"model"`
	Provider   ProviderConfig   `yaml:"provider"`
	Compaction CompactionConfig `yaml:"compaction"`
	Storage    StorageConfig    `yaml:"storage"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Workspace: "~/.ctxbudget/workspace",
		Model:     ModelConfig{Name: "anthropic/claude-sonnet-4-5"},
		Provider:  ProviderConfig{MaxRetries: 3, TimeoutSec: 120},
		Compaction: CompactionConfig{
			RoundsToKeep:     compaction.DefaultRoundsToKeep,
			TargetFraction:   compaction.DefaultTargetFraction,
			SavingsThreshold: compaction.DefaultSavingsThreshold,
			MaxAttempts:      compaction.DefaultMaxAttempts,
			NoiseTools:       []string{"list_dir"},
			AllowFullPass:    true,
			SummaryMaxTokens: 2048,
		},
		Storage: StorageConfig{Driver: StorageFile},
		Sweep:   SweepConfig{Schedule: "*/15 * * * *", Concurrency: 4, Archive: true},
		Embedding: EmbeddingConfig{
			TokenBudget:     8191,
			ReductionFactor: 0.5,
			Concurrency:     4,
		},
	}
}

// WorkspacePath returns the expanded absolute path to the workspace.
func (c *Config) WorkspacePath() string {
	ws := c.Workspace
	if ws == "" {
		ws = "~/.ctxbudget/workspace"
	}
	if strings.HasPrefix(ws, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			ws = filepath.Join(home, ws[2:])
		}
	}
	return ws
}

// ChatModel returns the model descriptor, applying the contextTokens
// override.
func (c *Config) ChatModel() schema.Model {
	m := schema.NewModel(c.Model.Name, 0)
	if c.Model.ContextTokens > 0 {
		m.ContextTokens = c.Model.ContextTokens
	}
	return m
}

// CompactionConfig converts the YAML section into an engine configuration.
func (c *Config) CompactionConfig() (compaction.Config, error) {
	cc := compaction.Config{
		RoundsToKeep:     c.Compaction.RoundsToKeep,
		TargetFraction:   c.Compaction.TargetFraction,
		SavingsThreshold: c.Compaction.SavingsThreshold,
		MaxAttempts:      c.Compaction.MaxAttempts,
		NoiseTools:       c.Compaction.NoiseTools,
		AllowFullPass:    c.Compaction.AllowFullPass,
	}
	if p := c.Compaction.IdentityPattern; p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return compaction.Config{}, fmt.Errorf("identityPattern: %w", err)
		}
		cc.IdentityPattern = re
	}
	cc.ApplyDefaults()
	return cc, cc.Validate()
}

// ProviderParams extracts the values providers.New needs.
func (c *Config) ProviderParams() providers.Params {
	return providers.Params{
		APIKey:       c.Provider.APIKey,
		APIBase:      c.Provider.APIBase,
		ExtraHeaders: c.Provider.ExtraHeaders,
		DefaultModel: c.Model.Name,
		ProviderName: c.Provider.Name,
		MaxRetries:   c.Provider.MaxRetries,
		Timeout:      time.Duration(c.Provider.TimeoutSec) * time.Second,
	}
}

// EmbedderConfig extracts the embedding section.
func (c *Config) EmbedderConfig() providers.EmbedderConfig {
	return providers.EmbedderConfig{
		Model:           c.Embedding.Model,
		TokenBudget:     c.Embedding.TokenBudget,
		ReductionFactor: c.Embedding.ReductionFactor,
		Concurrency:     c.Embedding.Concurrency,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if _, err := c.CompactionConfig(); err != nil {
		return fmt.Errorf("compaction: %w", err)
	}
	switch c.Storage.Driver {
	case StorageFile, "":
	case StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", StorageFile, StoragePostgres, c.Storage.Driver)
	}
	if c.Sweep.Concurrency < 1 {
		return fmt.Errorf("sweep.concurrency must be >= 1, got %d", c.Sweep.Concurrency)
	}
	if r := c.Embedding.ReductionFactor; r <= 0 || r > 1 {
		return fmt.Errorf("embedding.reductionFactor must be in (0, 1], got %g", r)
	}
	return nil
}

package compaction

import (
	"fmt"
	"regexp"
)

// Default configuration values. None of them is load-bearing; hosts tune
// them per model and workload.
const (
	DefaultRoundsToKeep     = 2
	DefaultTargetFraction   = 0.75
	DefaultSavingsThreshold = 0.65
	DefaultMaxAttempts      = 3
)

// DefaultIdentityPattern matches the system message that names the agent.
var DefaultIdentityPattern = regexp.MustCompile(`^\s*Your name is\b`)

// Config holds the tunables of one Engine.
type Config struct {
	// RoundsToKeep is the number of trailing rounds preserved verbatim by a
	// partial pass.
	RoundsToKeep int

	// TargetFraction of the context window the engine aims to stay under.
	TargetFraction float64

	// SavingsThreshold is the minimum fractional size reduction a summary
	// must achieve to be accepted.
	SavingsThreshold float64

	// MaxAttempts bounds summarizer calls per pass.
	MaxAttempts int

	// NoiseTools names tools whose calls carry no durable information. Their
	// requests and results are dropped instead of summarized.
	NoiseTools []string

	// AllowFullPass enables the second pass over recent history when a
	// partial pass leaves the log above budget.
	AllowFullPass bool

	// IdentityPattern selects the system message kept first.
	IdentityPattern *regexp.Regexp
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	return Config{
		RoundsToKeep:     DefaultRoundsToKeep,
		TargetFraction:   DefaultTargetFraction,
		SavingsThreshold: DefaultSavingsThreshold,
		MaxAttempts:      DefaultMaxAttempts,
		AllowFullPass:    true,
		IdentityPattern:  DefaultIdentityPattern,
	}
}

// ApplyDefaults fills zero-valued fields. AllowFullPass is left as set.
func (c *Config) ApplyDefaults() {
	if c.RoundsToKeep == 0 {
		c.RoundsToKeep = DefaultRoundsToKeep
	}
	if c.TargetFraction == 0 {
		c.TargetFraction = DefaultTargetFraction
	}
	if c.SavingsThreshold == 0 {
		c.SavingsThreshold = DefaultSavingsThreshold
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.IdentityPattern == nil {
		c.IdentityPattern = DefaultIdentityPattern
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.RoundsToKeep < 0 {
		return fmt.Errorf("%w: roundsToKeep must be >= 0, got %d", ErrInvalidConfig, c.RoundsToKeep)
	}
	if c.TargetFraction <= 0 || c.TargetFraction > 1 {
		return fmt.Errorf("%w: targetFraction must be in (0, 1], got %g", ErrInvalidConfig, c.TargetFraction)
	}
	if c.SavingsThreshold < 0 || c.SavingsThreshold >= 1 {
		return fmt.Errorf("%w: savingsThreshold must be in [0, 1), got %g", ErrInvalidConfig, c.SavingsThreshold)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: maxAttempts must be >= 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	return nil
}

func (c Config) isNoise(tool string) bool {
	for _, n := range c.NoiseTools {
		if n == tool {
			return true
		}
	}
	return false
}

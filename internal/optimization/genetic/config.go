package genetic

import (
	"time"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// Config contains configuration for the genetic search.
type Config struct {
	// Population size restored after every breeding step. At least 2.
	PopSize int `yaml:"pop_size" json:"pop_size"`

	// Mortality rate used by the rank-based cull.
	Mort float64 `yaml:"mort" json:"mort"`

	// Per-position mutation probability.
	BaseMute float64 `yaml:"base_mute" json:"base_mute"`

	// Per-gene probability of resizing to a random length.
	GeneMute float64 `yaml:"gene_mute" json:"gene_mute"`

	// Extra mutation passes applied when the population has converged.
	NukePower int `yaml:"nuke_power" json:"nuke_power"`

	// Gene value and length bounds, inclusive.
	MinParamVal int `yaml:"min_param_val" json:"min_param_val"`
	MaxParamVal int `yaml:"max_param_val" json:"max_param_val"`
	MinLen      int `yaml:"min_len" json:"min_len"`
	MaxLen      int `yaml:"max_len" json:"max_len"`

	// Worker count for fitness evaluation; 0 evaluates serially.
	Processes int `yaml:"processes" json:"processes"`

	// Random seed for reproducibility; 0 seeds from the clock.
	Seed int64 `yaml:"seed" json:"seed"`

	// Per-position bounds for the initial population only. Both or neither,
	// each of length MaxLen, and only used when MinLen == MaxLen.
	StartValuesMin []int `yaml:"-" json:"start_values_min,omitempty"`
	StartValuesMax []int `yaml:"-" json:"start_values_max,omitempty"`

	// StartGene, when set, replaces the first gene of the initial population.
	StartGene []int `yaml:"-" json:"start_gene,omitempty"`

	// EvalTimeout bounds the wait for each worker result.
	EvalTimeout time.Duration `yaml:"-" json:"-"`
}

// DefaultConfig returns a configuration with the usual rates; gene bounds
// must still be set.
func DefaultConfig() Config {
	return Config{
		PopSize:   50,
		Mort:      0.5,
		BaseMute:  0.01,
		GeneMute:  0.1,
		NukePower: 20,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	const op = "genetic.Config.Validate"
	switch {
	case c.PopSize < 2:
		return apperrors.Config(op, "pop_size must be at least 2, got %d", c.PopSize)
	case c.Mort < 0:
		return apperrors.Config(op, "mort must be >= 0, got %g", c.Mort)
	case c.BaseMute < 0 || c.BaseMute > 1:
		return apperrors.Config(op, "base_mute must be in [0, 1], got %g", c.BaseMute)
	case c.GeneMute < 0 || c.GeneMute > 1:
		return apperrors.Config(op, "gene_mute must be in [0, 1], got %g", c.GeneMute)
	case c.NukePower < 0:
		return apperrors.Config(op, "nuke_power must be >= 0, got %d", c.NukePower)
	case c.MinLen < 0 || c.MaxLen < 1 || c.MinLen > c.MaxLen:
		return apperrors.Config(op, "gene length bounds [%d, %d] are invalid", c.MinLen, c.MaxLen)
	case c.MinParamVal > c.MaxParamVal:
		return apperrors.Config(op, "min_param_val %d exceeds max_param_val %d", c.MinParamVal, c.MaxParamVal)
	case c.Processes < 0:
		return apperrors.Config(op, "processes must be >= 0, got %d", c.Processes)
	}

	if (c.StartValuesMin == nil) != (c.StartValuesMax == nil) {
		return apperrors.Config(op, "start_values_min and start_values_max must be given together")
	}
	if c.StartValuesMin != nil {
		if c.MinLen != c.MaxLen || len(c.StartValuesMin) != c.MaxLen || len(c.StartValuesMax) != c.MaxLen {
			return apperrors.Config(op, "start values need fixed gene length %d, got %d and %d",
				c.MaxLen, len(c.StartValuesMin), len(c.StartValuesMax))
		}
		for i := range c.StartValuesMin {
			if c.StartValuesMin[i] > c.StartValuesMax[i] {
				return apperrors.Config(op, "start value bounds at position %d are [%d, %d]",
					i, c.StartValuesMin[i], c.StartValuesMax[i])
			}
		}
	}
	if c.StartGene != nil && (len(c.StartGene) < c.MinLen || len(c.StartGene) > c.MaxLen) {
		return apperrors.Config(op, "start_gene length %d outside [%d, %d]", len(c.StartGene), c.MinLen, c.MaxLen)
	}
	return nil
}

package generator

import (
	"github.com/copyleftdev/gridplan/internal/capacity"
	"github.com/copyleftdev/gridplan/internal/data"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// CapacityConfig is the configuration shared by models that build plant.
type CapacityConfig struct {
	capacity.Config `yaml:",inline"`

	// StartMin and StartMax bound the initial value of each parameter.
	StartMin []int `yaml:"start_min"`
	StartMax []int `yaml:"start_max"`
}

// capacityGenerator carries the capacity state machine for a model and
// supplies the parts of Generator that do not depend on the output model.
type capacityGenerator struct {
	section  string
	base     *capacity.Base
	starts   [2][]int
	timestep float64
}

func newCapacityGenerator(section string, cfg CapacityConfig) (*capacityGenerator, error) {
	cfg.Section = section
	base, err := capacity.NewBase(cfg.Config)
	if err != nil {
		return nil, err
	}
	if (cfg.StartMin == nil) != (cfg.StartMax == nil) || len(cfg.StartMin) != len(cfg.StartMax) {
		return nil, apperrors.Config("generator.newCapacityGenerator",
			"In section %s, start_min and start_max must be given together with equal length", section)
	}
	for i := range cfg.StartMin {
		if cfg.StartMin[i] > cfg.StartMax[i] {
			return nil, apperrors.Config("generator.newCapacityGenerator",
				"In section %s, start_min[%d] = %d exceeds start_max[%d] = %d",
				section, i, cfg.StartMin[i], i, cfg.StartMax[i])
		}
	}
	return &capacityGenerator{
		section:  section,
		base:     base,
		starts:   [2][]int{cfg.StartMin, cfg.StartMax},
		timestep: base.Config().TimestepHrs,
	}, nil
}

func (g *capacityGenerator) Name() string { return g.section }

func (g *capacityGenerator) ParamCount() int { return g.base.ParamCount() }

func (g *capacityGenerator) ParamStarts() (min, max []int) {
	return g.starts[0], g.starts[1]
}

func (g *capacityGenerator) DataTypes() []string { return g.base.DataTypes() }

func (g *capacityGenerator) SetData(p data.Provider) error {
	if err := g.base.SetData(p); err != nil {
		return err
	}
	if g.starts[0] != nil && len(g.starts[0]) != g.base.ParamCount() {
		return apperrors.Config("generator.SetData",
			"In section %s, start_min has %d entries, expected %d", g.section, len(g.starts[0]), g.base.ParamCount())
	}
	return nil
}

func (g *capacityGenerator) StartingState() *capacity.State { return g.base.StartingState() }

func (g *capacityGenerator) TerminalValue(finalPeriod int, s *capacity.State) (float64, map[int]float64) {
	return g.base.TerminalValue(finalPeriod, s)
}

// mwh converts a supply series to energy.
func mwh(total, timestepHrs float64) float64 {
	return total * timestepHrs
}

package generator

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/gridplan/internal/capacity"
	"github.com/copyleftdev/gridplan/internal/data"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// VariableConfig configures a non-dispatchable renewable such as wind or solar.
type VariableConfig struct {
	CapacityConfig `yaml:",inline"`

	// CapacityFactorDataName names a table with one row per timestep and one
	// column per site.
	CapacityFactorDataName string                        `yaml:"capacity_factor_data_name"`
	VOMPerMWh              capacity.PeriodValue[float64] `yaml:"vom_per_mwh"`
	Technology             string                        `yaml:"technology"`
}

// Variable produces capacity × capacity factor at every site regardless of
// demand.
type Variable struct {
	*capacityGenerator
	cfg VariableConfig
	cf  [][]float64
}

func init() {
	Register(Model{
		Name:      "variable",
		NewConfig: func() interface{} { return &VariableConfig{} },
		Build: func(section string, cfg interface{}) (Generator, error) {
			c, ok := cfg.(*VariableConfig)
			if !ok {
				return nil, configType(section, "variable", &VariableConfig{}, cfg)
			}
			return NewVariable(section, *c)
		},
	})
}

// NewVariable validates cfg and returns the generator.
func NewVariable(section string, cfg VariableConfig) (*Variable, error) {
	if cfg.CapacityFactorDataName == "" {
		return nil, apperrors.Config("generator.NewVariable",
			"In section %s, capacity_factor_data_name is required", section)
	}
	cfg.VOMPerMWh = cfg.VOMPerMWh.OrDefault(0)
	cg, err := newCapacityGenerator(section, cfg.CapacityConfig)
	if err != nil {
		return nil, err
	}
	return &Variable{capacityGenerator: cg, cfg: cfg}, nil
}

// DataTypes implements Generator.
func (v *Variable) DataTypes() []string {
	return append(v.base.DataTypes(), v.cfg.CapacityFactorDataName)
}

// SetData implements Generator.
func (v *Variable) SetData(p data.Provider) error {
	if err := v.capacityGenerator.SetData(p); err != nil {
		return err
	}
	cf, err := p.Table(v.cfg.CapacityFactorDataName)
	if err != nil {
		return apperrors.Wrapf(err, "In section %s", v.section)
	}
	if len(cf) != p.Length() {
		return apperrors.Config("generator.Variable.SetData",
			"In section %s, %s has %d rows, expected %d", v.section, v.cfg.CapacityFactorDataName, len(cf), p.Length())
	}
	cols := len(cf[0])
	sites := append(v.base.ParamsToSite(), v.base.StartingState().SiteIndices()...)
	for _, site := range sites {
		if site < 0 || site >= cols {
			return apperrors.Config("generator.Variable.SetData",
				"In section %s, site %d has no column in %s", v.section, site, v.cfg.CapacityFactorDataName)
		}
	}
	v.cf = cf
	return nil
}

// OutputsAndCosts implements capacity.OutputModel.
func (v *Variable) OutputsAndCosts(s *capacity.State, request []float64) (capacity.Outputs, error) {
	sites := s.SiteIndices()
	out := capacity.Outputs{
		Supply:       make([][]float64, len(sites)),
		VariableCost: make([]float64, len(sites)),
		Carbon:       make([]float64, len(sites)),
	}
	vom := v.cfg.VOMPerMWh.At(s.Period)
	for i, site := range sites {
		col, err := data.Column(v.cf, site)
		if err != nil {
			return out, apperrors.Wrapf(err, "site %d", site)
		}
		floats.Scale(s.Sites[site].Total(), col)
		out.Supply[i] = col
		out.VariableCost[i] = 1e-6 * vom * mwh(floats.Sum(col), v.timestep)
	}
	return out, nil
}

// CalculateTimePeriod implements Generator.
func (v *Variable) CalculateTimePeriod(s *capacity.State, period int, params []int, request []float64, full bool) (*capacity.PeriodResult, error) {
	res, err := v.base.CalculateTimePeriod(s, period, params, request, v, full)
	if err != nil || !full {
		return res, err
	}
	var built float64
	for _, n := range res.NewCapacity {
		built += n.Capacity
	}
	res.Description = fmt.Sprintf("Variable %s, total capacity %.2f MW, new capacity %.2f MW",
		v.Details().Technology, floats.Sum(res.Capacity), built)
	return res, nil
}

// Details implements Generator.
func (v *Variable) Details() Details {
	tech := v.cfg.Technology
	if tech == "" {
		tech = "generic"
	}
	return Details{Section: v.section, Model: "variable", Technology: tech}
}

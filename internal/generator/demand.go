package generator

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/gridplan/internal/capacity"
	"github.com/copyleftdev/gridplan/internal/data"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// DefaultDemandSeries is the series demand is read from when none is named.
const DefaultDemandSeries = "ts_demand"

// DemandConfig configures demand as a dispatched component.
type DemandConfig struct {
	DemandDataName string `yaml:"demand_data_name"`
	// Scale multiplies the demand series, for growth between periods.
	Scale           capacity.PeriodValue[float64] `yaml:"scale"`
	TimestepHrs     float64                       `yaml:"timestep_hrs"`
	TimeScaleUpMult capacity.PeriodValue[float64] `yaml:"time_scale_up_mult"`
}

// Demand contributes negative supply equal to the scaled demand series. When
// it is in the dispatch order the residual starts at zero and demand is added
// where Demand is dispatched.
type Demand struct {
	section string
	cfg     DemandConfig
	series  []float64
}

func init() {
	Register(Model{
		Name:      "demand",
		NewConfig: func() interface{} { return &DemandConfig{} },
		Build: func(section string, cfg interface{}) (Generator, error) {
			c, ok := cfg.(*DemandConfig)
			if !ok {
				return nil, configType(section, "demand", &DemandConfig{}, cfg)
			}
			return NewDemand(section, *c)
		},
	})
}

// NewDemand applies defaults and returns the component.
func NewDemand(section string, cfg DemandConfig) (*Demand, error) {
	if cfg.DemandDataName == "" {
		cfg.DemandDataName = DefaultDemandSeries
	}
	if cfg.TimestepHrs == 0 {
		cfg.TimestepHrs = 1
	}
	cfg.Scale = cfg.Scale.OrDefault(1)
	cfg.TimeScaleUpMult = cfg.TimeScaleUpMult.OrDefault(1)
	for _, v := range cfg.Scale.Values() {
		if v < 0 {
			return nil, apperrors.Config("generator.NewDemand", "In section %s, scale must be >= 0, got %g", section, v)
		}
	}
	return &Demand{section: section, cfg: cfg}, nil
}

func (d *Demand) Name() string                   { return d.section }
func (d *Demand) ParamCount() int                { return 0 }
func (d *Demand) ParamStarts() (min, max []int)  { return nil, nil }
func (d *Demand) DataTypes() []string            { return []string{d.cfg.DemandDataName} }
func (d *Demand) StartingState() *capacity.State { return capacity.NewState() }

// SetData implements Generator.
func (d *Demand) SetData(p data.Provider) error {
	series, err := p.Series(d.cfg.DemandDataName)
	if err != nil {
		return apperrors.Wrapf(err, "In section %s", d.section)
	}
	d.series = series
	return nil
}

// TerminalValue implements Generator.
func (d *Demand) TerminalValue(int, *capacity.State) (float64, map[int]float64) {
	return 0, map[int]float64{}
}

// CalculateTimePeriod implements Generator.
func (d *Demand) CalculateTimePeriod(s *capacity.State, period int, params []int, request []float64, full bool) (*capacity.PeriodResult, error) {
	if len(params) != 0 {
		return nil, apperrors.Config("generator.Demand.CalculateTimePeriod",
			"In section %s, got %d params, expected none", d.section, len(params))
	}
	if len(request) != len(d.series) {
		return nil, apperrors.Config("generator.Demand.CalculateTimePeriod",
			"In section %s, request length %d does not match demand length %d", d.section, len(request), len(d.series))
	}
	s.SetPeriod(period)

	supply := make([]float64, len(d.series))
	floats.ScaleTo(supply, -d.cfg.Scale.At(period), d.series)

	res := &capacity.PeriodResult{Period: period, Supply: supply}
	if full {
		total := -floats.Sum(supply) * d.cfg.TimeScaleUpMult.At(period) * d.cfg.TimestepHrs
		res.TotalSupply = -total
		res.SiteSupply = [][]float64{supply}
		res.Other = map[string]float64{"total_demand": total}
		res.Description = fmt.Sprintf("Demand, total %.2f MWh", total)
	}
	return res, nil
}

// Details implements Generator.
func (d *Demand) Details() Details {
	return Details{Section: d.section, Model: "demand"}
}

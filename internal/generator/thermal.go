package generator

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/gridplan/internal/capacity"
)

// ThermalConfig configures instantly dispatchable fuel-burning plant.
type ThermalConfig struct {
	CapacityConfig `yaml:",inline"`

	// FuelPriceMWh is the fuel cost in $ per MWh generated.
	FuelPriceMWh capacity.PeriodValue[float64] `yaml:"fuel_price_mwh"`
	// CarbonIntensity is tonnes of CO2 per MWh generated.
	CarbonIntensity capacity.PeriodValue[float64] `yaml:"carbon_intensity"`
	Technology      string                        `yaml:"technology"`
}

// Thermal meets as much positive residual demand as its installed capacity
// allows, filling sites in ascending site order.
type Thermal struct {
	*capacityGenerator
	cfg ThermalConfig
}

func init() {
	Register(Model{
		Name:      "thermal",
		NewConfig: func() interface{} { return &ThermalConfig{} },
		Build: func(section string, cfg interface{}) (Generator, error) {
			c, ok := cfg.(*ThermalConfig)
			if !ok {
				return nil, configType(section, "thermal", &ThermalConfig{}, cfg)
			}
			return NewThermal(section, *c)
		},
	})
}

// NewThermal validates cfg and returns the generator.
func NewThermal(section string, cfg ThermalConfig) (*Thermal, error) {
	cfg.FuelPriceMWh = cfg.FuelPriceMWh.OrDefault(0)
	cfg.CarbonIntensity = cfg.CarbonIntensity.OrDefault(0)
	cg, err := newCapacityGenerator(section, cfg.CapacityConfig)
	if err != nil {
		return nil, err
	}
	return &Thermal{capacityGenerator: cg, cfg: cfg}, nil
}

// OutputsAndCosts implements capacity.OutputModel.
func (t *Thermal) OutputsAndCosts(s *capacity.State, request []float64) (capacity.Outputs, error) {
	sites := s.SiteIndices()
	out := capacity.Outputs{
		Supply:       make([][]float64, len(sites)),
		VariableCost: make([]float64, len(sites)),
		Carbon:       make([]float64, len(sites)),
	}

	remaining := make([]float64, len(request))
	for i, r := range request {
		if r > 0 {
			remaining[i] = r
		}
	}

	fuel := t.cfg.FuelPriceMWh.At(s.Period)
	intensity := t.cfg.CarbonIntensity.At(s.Period)
	for i, site := range sites {
		limit := s.Sites[site].Total()
		supply := make([]float64, len(remaining))
		for ts, r := range remaining {
			if r > limit {
				r = limit
			}
			supply[ts] = r
		}
		floats.Sub(remaining, supply)

		energy := mwh(floats.Sum(supply), t.timestep)
		out.Supply[i] = supply
		out.VariableCost[i] = 1e-6 * fuel * energy
		out.Carbon[i] = intensity * energy
	}
	return out, nil
}

// CalculateTimePeriod implements Generator.
func (t *Thermal) CalculateTimePeriod(s *capacity.State, period int, params []int, request []float64, full bool) (*capacity.PeriodResult, error) {
	res, err := t.base.CalculateTimePeriod(s, period, params, request, t, full)
	if err != nil || !full {
		return res, err
	}
	res.Description = fmt.Sprintf("Thermal %s, total capacity %.2f MW, supplied %.2f MWh, carbon %.2f t",
		t.Details().Technology, floats.Sum(res.Capacity), res.TotalSupply, res.Carbon)
	return res, nil
}

// Details implements Generator.
func (t *Thermal) Details() Details {
	tech := t.cfg.Technology
	if tech == "" {
		tech = "fossil"
	}
	return Details{Section: t.section, Model: "thermal", Dispatchable: true, Technology: tech}
}

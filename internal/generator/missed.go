package generator

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/gridplan/internal/capacity"
	"github.com/copyleftdev/gridplan/internal/data"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// MissedSupplySite is the pseudo-site missed supply is reported against.
const MissedSupplySite = -1

// MissedSupplyConfig configures the penalty for unmet demand.
type MissedSupplyConfig struct {
	// CostPerMWh is in $ per MWh missed.
	CostPerMWh       capacity.PeriodValue[float64] `yaml:"cost_per_mwh"`
	TimestepHrs      float64                       `yaml:"timestep_hrs"`
	VariableCostMult capacity.PeriodValue[float64] `yaml:"variable_cost_mult"`
	TimeScaleUpMult  capacity.PeriodValue[float64] `yaml:"time_scale_up_mult"`
}

// MissedSupply absorbs whatever positive residual demand reaches it at a flat
// price. It has no parameters and no capacity.
type MissedSupply struct {
	section string
	cfg     MissedSupplyConfig
}

func init() {
	Register(Model{
		Name:      "missed_supply",
		NewConfig: func() interface{} { return &MissedSupplyConfig{} },
		Build: func(section string, cfg interface{}) (Generator, error) {
			c, ok := cfg.(*MissedSupplyConfig)
			if !ok {
				return nil, configType(section, "missed_supply", &MissedSupplyConfig{}, cfg)
			}
			return NewMissedSupply(section, *c)
		},
	})
}

// NewMissedSupply validates cfg and returns the generator.
func NewMissedSupply(section string, cfg MissedSupplyConfig) (*MissedSupply, error) {
	if !cfg.CostPerMWh.IsSet() {
		return nil, apperrors.Config("generator.NewMissedSupply", "In section %s, cost_per_mwh is required", section)
	}
	if cfg.TimestepHrs == 0 {
		cfg.TimestepHrs = 1
	}
	cfg.VariableCostMult = cfg.VariableCostMult.OrDefault(1)
	cfg.TimeScaleUpMult = cfg.TimeScaleUpMult.OrDefault(1)
	return &MissedSupply{section: section, cfg: cfg}, nil
}

func (m *MissedSupply) Name() string                   { return m.section }
func (m *MissedSupply) ParamCount() int                { return 0 }
func (m *MissedSupply) ParamStarts() (min, max []int)  { return nil, nil }
func (m *MissedSupply) DataTypes() []string            { return nil }
func (m *MissedSupply) SetData(data.Provider) error    { return nil }
func (m *MissedSupply) StartingState() *capacity.State { return capacity.NewState() }

// TerminalValue implements Generator. Missed supply has nothing to value.
func (m *MissedSupply) TerminalValue(int, *capacity.State) (float64, map[int]float64) {
	return 0, map[int]float64{}
}

// CalculateTimePeriod implements Generator.
func (m *MissedSupply) CalculateTimePeriod(s *capacity.State, period int, params []int, request []float64, full bool) (*capacity.PeriodResult, error) {
	if len(params) != 0 {
		return nil, apperrors.Config("generator.MissedSupply.CalculateTimePeriod",
			"In section %s, got %d params, expected none", m.section, len(params))
	}
	s.SetPeriod(period)

	supply := make([]float64, len(request))
	for i, r := range request {
		if r > 0 {
			supply[i] = r
		}
	}
	total := floats.Sum(supply)
	missed := mwh(total, m.cfg.TimestepHrs)
	vc := 1e-6 * missed * m.cfg.CostPerMWh.At(period)
	cost := vc * m.cfg.VariableCostMult.At(period)

	res := &capacity.PeriodResult{
		Period:  period,
		Sites:   []int{MissedSupplySite},
		Cost:    cost,
		VarCost: cost,
		Supply:  supply,
	}
	if full {
		res.Capacity = []float64{0}
		res.SiteSupply = [][]float64{supply}
		res.TotalSupply = total * m.cfg.TimeScaleUpMult.At(period) * m.cfg.TimestepHrs
		res.Other = map[string]float64{"total_missed": missed}
		res.Description = fmt.Sprintf("Linear missed supply, total %.2f MWh missed", missed)
	}
	return res, nil
}

// Details implements Generator.
func (m *MissedSupply) Details() Details {
	return Details{Section: m.section, Model: "missed_supply", Dispatchable: true}
}

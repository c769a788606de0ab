// Package capacity implements the multi-period capacity state machine shared
// by every generator that builds and retires plant: installing new capacity
// decoded from parameters, costing it, retiring it at the end of its life and
// valuing whatever is still standing at the horizon.
package capacity

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/gridplan/internal/data"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// Config holds the parameters of a capacity-building generator. Any
// PeriodValue may be given per period.
type Config struct {
	// Section names the scenario section, for error messages.
	Section string `yaml:"-"`

	TimePeriodYrs       int                  `yaml:"time_period_yrs"`
	Lifetime            PeriodValue[int]     `yaml:"lifetime"`
	CapitalCost         PeriodValue[float64] `yaml:"capital_cost"`
	DecommissioningCost PeriodValue[float64] `yaml:"decommissioning_cost"`
	Size                PeriodValue[float64] `yaml:"size"`
	VariableCostMult    PeriodValue[float64] `yaml:"variable_cost_mult"`
	TimeScaleUpMult     PeriodValue[float64] `yaml:"time_scale_up_mult"`
	CarbonPrice         PeriodValue[float64] `yaml:"carbon_price_m"`
	TimestepHrs         float64              `yaml:"timestep_hrs"`

	// StartupDataName names a table of (site, capacity, build, decommission)
	// rows describing plant that exists before the first period.
	StartupDataName string `yaml:"startup_data_name"`
	// ParamsToSiteDataName names a series mapping parameter position to site.
	ParamsToSiteDataName string `yaml:"params_to_site_data_name"`
	// SiteCount is the parameter count when no site map is supplied.
	SiteCount int `yaml:"site_count"`
}

// ApplyDefaults fills optional parameters.
func (c *Config) ApplyDefaults() {
	c.DecommissioningCost = c.DecommissioningCost.OrDefault(0)
	c.Size = c.Size.OrDefault(1)
	c.VariableCostMult = c.VariableCostMult.OrDefault(1)
	c.TimeScaleUpMult = c.TimeScaleUpMult.OrDefault(1)
	c.CarbonPrice = c.CarbonPrice.OrDefault(0)
	if c.TimestepHrs == 0 {
		c.TimestepHrs = 1
	}
	if c.SiteCount == 0 && c.ParamsToSiteDataName == "" {
		c.SiteCount = 1
	}
}

// Validate checks required parameters and that every lifetime is a whole
// number of periods.
func (c *Config) Validate() error {
	const op = "capacity.Config.Validate"
	if c.TimePeriodYrs <= 0 {
		return apperrors.Config(op, "In section %s, time_period_yrs is required and must be positive", c.Section)
	}
	if !c.Lifetime.IsSet() {
		return apperrors.Config(op, "In section %s, lifetime is required", c.Section)
	}
	if !c.CapitalCost.IsSet() {
		return apperrors.Config(op, "In section %s, capital_cost is required", c.Section)
	}
	for _, lifetime := range c.Lifetime.Values() {
		if lifetime <= 0 || lifetime%c.TimePeriodYrs != 0 {
			return apperrors.Config(op,
				"In section %s, lifetime = %d which is required to be a multiple of time_period_yrs of %d",
				c.Section, lifetime, c.TimePeriodYrs)
		}
	}
	if c.SiteCount < 0 {
		return apperrors.Config(op, "In section %s, site_count must be >= 0", c.Section)
	}
	return nil
}

// SiteAmount is a per-site quantity of capacity with its cost.
type SiteAmount struct {
	Site     int     `json:"site"`
	Capacity float64 `json:"capacity"`
	Cost     float64 `json:"cost"`
}

// NewCapacity is an explicit installation request.
type NewCapacity struct {
	Site         int
	Capacity     float64
	Decommission int
}

// Base is the capacity state machine. It is read-only once SetData has run,
// so one Base serves any number of concurrent evaluations, each with its own
// State from StartingState.
type Base struct {
	cfg          Config
	starting     *State
	paramsToSite []int
}

// NewBase validates cfg and returns a Base with an empty starting state.
func NewBase(cfg Config) (*Base, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Base{
		cfg:      cfg,
		starting: NewState(),
	}
	if cfg.ParamsToSiteDataName == "" {
		b.paramsToSite = make([]int, cfg.SiteCount)
		for i := range b.paramsToSite {
			b.paramsToSite[i] = i
		}
	}
	return b, nil
}

// Config returns the validated configuration.
func (b *Base) Config() Config {
	return b.cfg
}

// DataTypes lists the data names SetData will read.
func (b *Base) DataTypes() []string {
	var types []string
	if b.cfg.StartupDataName != "" {
		types = append(types, b.cfg.StartupDataName)
	}
	if b.cfg.ParamsToSiteDataName != "" {
		types = append(types, b.cfg.ParamsToSiteDataName)
	}
	return types
}

// SetData loads existing plant into the starting state and the parameter to
// site map.
func (b *Base) SetData(p data.Provider) error {
	const op = "capacity.Base.SetData"

	if name := b.cfg.StartupDataName; name != "" {
		rows, err := p.Table(name)
		if err != nil {
			return apperrors.Wrapf(err, "In section %s", b.cfg.Section)
		}
		byBuild := make(map[int][]NewCapacity)
		var builds []int
		for i, row := range rows {
			if len(row) < 4 {
				return apperrors.Config(op, "In section %s, startup row %d needs 4 columns, has %d",
					b.cfg.Section, i, len(row))
			}
			build := int(row[2])
			if _, ok := byBuild[build]; !ok {
				builds = append(builds, build)
			}
			byBuild[build] = append(byBuild[build], NewCapacity{
				Site:         int(row[0]),
				Capacity:     row[1],
				Decommission: int(row[3]),
			})
		}
		sort.Ints(builds)
		for _, build := range builds {
			b.UpdateStateNewPeriodList(b.starting, build, byBuild[build])
		}
		// a starting state has no period
		b.starting.Period, b.starting.HasPeriod = 0, false
	}

	if name := b.cfg.ParamsToSiteDataName; name != "" {
		series, err := p.Series(name)
		if err != nil {
			if table, terr := p.Table(name); terr == nil && len(table) > 0 {
				series = table[0]
			} else {
				return apperrors.Wrapf(err, "In section %s", b.cfg.Section)
			}
		}
		b.paramsToSite = make([]int, len(series))
		for i, v := range series {
			b.paramsToSite[i] = int(v)
		}
	}
	return nil
}

// ParamCount is the number of parameters per period.
func (b *Base) ParamCount() int {
	return len(b.paramsToSite)
}

// ParamsToSite returns the parameter position to site map.
func (b *Base) ParamsToSite() []int {
	return append([]int(nil), b.paramsToSite...)
}

// StartingState returns an independent copy of the starting state.
func (b *Base) StartingState() *State {
	return b.starting.Clone()
}

// DecommissionPeriod is the last period plant built in period operates in.
func (b *Base) DecommissionPeriod(period int) int {
	return period + b.cfg.Lifetime.At(period) - b.cfg.TimePeriodYrs
}

// UpdateStateNewPeriodParams installs params[i] × size at the site mapped to
// parameter i, for every nonzero parameter.
func (b *Base) UpdateStateNewPeriodParams(s *State, period int, params []int) error {
	if len(params) != len(b.paramsToSite) {
		return apperrors.Config("capacity.Base.UpdateStateNewPeriodParams",
			"In section %s, got %d params, expected %d", b.cfg.Section, len(params), len(b.paramsToSite))
	}
	s.SetPeriod(period)
	size := b.cfg.Size.At(period)
	decommission := b.DecommissionPeriod(period)
	for i, p := range params {
		newCap := float64(p) * size
		if newCap == 0 {
			continue
		}
		s.Install(b.paramsToSite[i], newCap, period, decommission)
	}
	return nil
}

// UpdateStateNewPeriodList installs explicit capacity built in period.
func (b *Base) UpdateStateNewPeriodList(s *State, period int, caps []NewCapacity) {
	s.SetPeriod(period)
	for _, c := range caps {
		s.Install(c.Site, c.Capacity, period, c.Decommission)
	}
}

// CalculateNewCapacityCost prices the capacity built in the current period.
func (b *Base) CalculateNewCapacityCost(s *State) (float64, []SiteAmount) {
	var total float64
	var built []SiteAmount
	for _, site := range s.SiteIndices() {
		l := s.Sites[site]
		idx := l.builtIn(s.Period)
		if len(idx) == 0 {
			continue
		}
		cost, newCap := b.linearCapitalCost(l, s.Period, idx)
		built = append(built, SiteAmount{Site: site, Capacity: newCap, Cost: cost})
		total += cost
	}
	return total, built
}

func (b *Base) linearCapitalCost(l *Ledger, period int, newIdx []int) (float64, float64) {
	var newCap float64
	for _, i := range newIdx {
		newCap += l.Capacity[i]
	}
	return newCap * b.cfg.CapitalCost.At(period), newCap
}

// CalculateUpdateDecommission retires every entry whose decommission period
// is the current period, drops emptied sites, and returns the cost.
func (b *Base) CalculateUpdateDecommission(s *State) (float64, []SiteAmount) {
	rate := b.cfg.DecommissioningCost.At(s.Period)
	var total float64
	var retired []SiteAmount
	for _, site := range s.SiteIndices() {
		l := s.Sites[site]
		removed, n := l.retire(s.Period)
		if n == 0 {
			continue
		}
		cost := removed * rate
		retired = append(retired, SiteAmount{Site: site, Capacity: removed, Cost: cost})
		total += cost
		if l.Len() == 0 {
			delete(s.Sites, site)
		}
	}
	return total, retired
}

// TerminalValue credits plant still standing after finalPeriod with the
// undepreciated share of its capital cost, straight-line over its lifetime.
// Plant whose own span outlasts the configured lifetime is credited at most
// its full capital cost.
func (b *Base) TerminalValue(finalPeriod int, s *State) (float64, map[int]float64) {
	var total float64
	perSite := make(map[int]float64, len(s.Sites))
	for _, site := range s.SiteIndices() {
		l := s.Sites[site]
		var value float64
		for i := range l.Capacity {
			remaining := l.Decommission[i] - finalPeriod
			if remaining <= 0 {
				continue
			}
			build := l.Build[i]
			lifetime := b.cfg.Lifetime.At(build)
			if remaining > lifetime {
				remaining = lifetime
			}
			value += l.Capacity[i] * b.cfg.CapitalCost.At(build) * float64(remaining) / float64(lifetime)
		}
		if value != 0 {
			perSite[site] = value
			total += value
		}
	}
	return total, perSite
}

// Outputs is what an output model reports for one period. Every per-site
// slice follows State.SiteIndices order.
type Outputs struct {
	Supply       [][]float64
	VariableCost []float64
	Carbon       []float64
	Other        map[string]float64
}

// OutputModel turns installed capacity into supply, variable cost and carbon
// for the requested supply. It must not modify the state.
type OutputModel interface {
	OutputsAndCosts(s *State, supplyRequest []float64) (Outputs, error)
}

// PeriodResult is the outcome of one generator in one period.
type PeriodResult struct {
	Period      int       `json:"period"`
	Sites       []int     `json:"sites"`
	Cost        float64   `json:"cost"`
	CapitalCost float64   `json:"capital_cost"`
	DecommCost  float64   `json:"decommissioning_cost"`
	VarCost     float64   `json:"variable_cost"`
	Supply      []float64 `json:"-"`

	// Set only for full results.
	Capacity       []float64          `json:"capacity,omitempty"`
	NewCapacity    []SiteAmount       `json:"new_capacity,omitempty"`
	Decommissioned []SiteAmount       `json:"decommissioned,omitempty"`
	SiteSupply     [][]float64        `json:"-"`
	Carbon         float64            `json:"carbon"`
	TotalSupply    float64            `json:"total_supply"`
	Other          map[string]float64 `json:"other,omitempty"`
	Description    string             `json:"description,omitempty"`
}

// CalculateTimePeriod runs one period: install, price new build, dispatch via
// model, retire. supplyRequest is not modified.
func (b *Base) CalculateTimePeriod(s *State, period int, params []int, supplyRequest []float64,
	model OutputModel, full bool) (*PeriodResult, error) {
	if err := b.UpdateStateNewPeriodParams(s, period, params); err != nil {
		return nil, err
	}

	res := &PeriodResult{Period: period, Sites: s.SiteIndices()}
	if full {
		res.Capacity = s.Capacity()
	}

	var built []SiteAmount
	res.CapitalCost, built = b.CalculateNewCapacityCost(s)

	out, err := model.OutputsAndCosts(s, supplyRequest)
	if err != nil {
		return nil, apperrors.Wrapf(err, "In section %s, period %d", b.cfg.Section, period)
	}
	if len(out.Supply) != len(res.Sites) {
		return nil, apperrors.ClassType("capacity.Base.CalculateTimePeriod",
			"In section %s, output model returned %d supply series for %d sites",
			b.cfg.Section, len(out.Supply), len(res.Sites))
	}

	res.Supply = make([]float64, len(supplyRequest))
	for _, series := range out.Supply {
		floats.Add(res.Supply, series)
	}

	vcm := b.cfg.VariableCostMult.At(period)
	carbon := floats.Sum(out.Carbon)
	res.VarCost = (floats.Sum(out.VariableCost) + carbon*b.cfg.CarbonPrice.At(period)) * vcm

	var retired []SiteAmount
	res.DecommCost, retired = b.CalculateUpdateDecommission(s)

	res.Cost = res.CapitalCost + res.DecommCost + res.VarCost

	if full {
		scale := b.cfg.TimeScaleUpMult.At(period)
		res.NewCapacity = built
		res.Decommissioned = retired
		res.SiteSupply = out.Supply
		res.Carbon = carbon * scale
		res.TotalSupply = floats.Sum(res.Supply) * scale * b.cfg.TimestepHrs
		res.Other = out.Other
	}
	return res, nil
}

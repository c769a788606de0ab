// Package dispatch decodes a flat gene into per-period, per-generator
// parameters and runs every generator through every period in dispatch
// order, tracking residual demand and accumulating cost.
package dispatch

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/gridplan/internal/capacity"
	"github.com/copyleftdev/gridplan/internal/data"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
	"github.com/copyleftdev/gridplan/internal/generator"
)

// Config holds the pipeline settings from the master section.
type Config struct {
	RunPeriods    []int
	TimePeriodYrs int
	MinParamVal   int
	MaxParamVal   int
	// DemandDataName is read when no demand component is dispatched.
	DemandDataName  string
	TimestepHrs     float64
	TimeScaleUpMult float64
}

// Span is a half-open range of parameter positions within one period's block.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of positions in the span.
func (s Span) Len() int { return s.End - s.Start }

// Pipeline is the fitness function body. It is immutable after New and safe
// for concurrent use.
type Pipeline struct {
	cfg        Config
	order      []generator.Generator
	spans      []Span
	pointers   map[string]Span
	paramCount int
	demand     []float64
	tsLength   int
	logger     *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New supplies data to every generator and fixes the parameter pointer table.
func New(cfg Config, order []generator.Generator, provider data.Provider, opts ...Option) (*Pipeline, error) {
	const op = "dispatch.New"

	if cfg.DemandDataName == "" {
		cfg.DemandDataName = generator.DefaultDemandSeries
	}
	if cfg.TimestepHrs == 0 {
		cfg.TimestepHrs = 1
	}
	if cfg.TimeScaleUpMult == 0 {
		cfg.TimeScaleUpMult = 1
	}
	if err := validate(cfg, order); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		order:    order,
		spans:    make([]Span, len(order)),
		pointers: make(map[string]Span, len(order)),
		tsLength: provider.Length(),
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}

	hasDemand := false
	for i, g := range order {
		for _, name := range g.DataTypes() {
			if !provider.Has(name) {
				return nil, apperrors.Config(op, "In section %s, data %s is not loaded", g.Name(), name)
			}
		}
		if err := g.SetData(provider); err != nil {
			return nil, apperrors.Wrapf(err, "supplying data to %s", g.Name())
		}
		n := g.ParamCount()
		p.spans[i] = Span{Start: p.paramCount, End: p.paramCount + n}
		p.pointers[g.Name()] = p.spans[i]
		p.paramCount += n
		if g.Details().Model == "demand" {
			hasDemand = true
		}
	}
	if p.paramCount == 0 {
		return nil, apperrors.Config(op, "dispatch order %v has no parameters to optimise", p.Names())
	}

	if !hasDemand {
		series, err := provider.Series(cfg.DemandDataName)
		if err != nil {
			return nil, apperrors.Wrap(err, "loading demand")
		}
		p.demand = series
	}

	p.logger.Debug("pipeline configured",
		zap.Strings("dispatch_order", p.Names()),
		zap.Ints("run_periods", cfg.RunPeriods),
		zap.Int("param_count", p.paramCount),
		zap.Int("gene_length", p.GeneLength()),
		zap.Bool("demand_dispatched", hasDemand))
	return p, nil
}

func validate(cfg Config, order []generator.Generator) error {
	const op = "dispatch.validate"
	if len(order) == 0 {
		return apperrors.Config(op, "dispatch_order is empty")
	}
	if len(cfg.RunPeriods) == 0 {
		return apperrors.Config(op, "run_periods is empty")
	}
	if cfg.TimePeriodYrs <= 0 {
		return apperrors.Config(op, "time_period_yrs must be positive, got %d", cfg.TimePeriodYrs)
	}
	for i := 1; i < len(cfg.RunPeriods); i++ {
		if cfg.RunPeriods[i]-cfg.RunPeriods[i-1] != cfg.TimePeriodYrs {
			return apperrors.Config(op, "run_periods must be separated by time_period_yrs (%d), got %v",
				cfg.TimePeriodYrs, cfg.RunPeriods)
		}
	}
	if cfg.MinParamVal > cfg.MaxParamVal {
		return apperrors.Config(op, "min_param_val %d exceeds max_param_val %d", cfg.MinParamVal, cfg.MaxParamVal)
	}
	seen := make(map[string]bool, len(order))
	for _, g := range order {
		if seen[g.Name()] {
			return apperrors.Config(op, "generator %s appears twice in dispatch_order", g.Name())
		}
		seen[g.Name()] = true
	}
	return nil
}

// Names returns the dispatch order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.order))
	for i, g := range p.order {
		names[i] = g.Name()
	}
	return names
}

// Generators returns the generators in dispatch order.
func (p *Pipeline) Generators() []generator.Generator {
	return append([]generator.Generator(nil), p.order...)
}

// RunPeriods returns the simulated periods.
func (p *Pipeline) RunPeriods() []int {
	return append([]int(nil), p.cfg.RunPeriods...)
}

// ParamCount is the number of parameters per period.
func (p *Pipeline) ParamCount() int { return p.paramCount }

// GeneLength is the number of positions in a full candidate.
func (p *Pipeline) GeneLength() int { return p.paramCount * len(p.cfg.RunPeriods) }

// Pointers returns the parameter pointer table.
func (p *Pipeline) Pointers() map[string]Span {
	out := make(map[string]Span, len(p.pointers))
	for k, v := range p.pointers {
		out[k] = v
	}
	return out
}

// ParamBounds returns per-position initial bounds for a full gene, taking
// each generator's own start bounds where it has them and the global
// min_param_val/max_param_val otherwise.
func (p *Pipeline) ParamBounds() (min, max []int) {
	n := p.GeneLength()
	min = make([]int, 0, n)
	max = make([]int, 0, n)
	for range p.cfg.RunPeriods {
		for i, g := range p.order {
			lo, hi := g.ParamStarts()
			for j := 0; j < p.spans[i].Len(); j++ {
				if lo != nil {
					min = append(min, lo[j])
					max = append(max, hi[j])
					continue
				}
				min = append(min, p.cfg.MinParamVal)
				max = append(max, p.cfg.MaxParamVal)
			}
		}
	}
	return min, max
}

// Decode splits a flat gene into [period][generator] parameter blocks.
func (p *Pipeline) Decode(values []int) ([][][]int, error) {
	if err := p.checkLength(values); err != nil {
		return nil, err
	}
	blocks := make([][][]int, len(p.cfg.RunPeriods))
	for pi := range p.cfg.RunPeriods {
		row := values[pi*p.paramCount : (pi+1)*p.paramCount]
		blocks[pi] = make([][]int, len(p.order))
		for gi, s := range p.spans {
			blocks[pi][gi] = append([]int(nil), row[s.Start:s.End]...)
		}
	}
	return blocks, nil
}

// Encode concatenates [period][generator] blocks back into a flat gene.
func (p *Pipeline) Encode(blocks [][][]int) ([]int, error) {
	const op = "dispatch.Encode"
	if len(blocks) != len(p.cfg.RunPeriods) {
		return nil, apperrors.Config(op, "got %d periods, expected %d", len(blocks), len(p.cfg.RunPeriods))
	}
	values := make([]int, 0, p.GeneLength())
	for pi, period := range blocks {
		if len(period) != len(p.order) {
			return nil, apperrors.Config(op, "period %d has %d generators, expected %d", pi, len(period), len(p.order))
		}
		for gi, params := range period {
			if len(params) != p.spans[gi].Len() {
				return nil, apperrors.Config(op, "period %d generator %s has %d params, expected %d",
					pi, p.order[gi].Name(), len(params), p.spans[gi].Len())
			}
			values = append(values, params...)
		}
	}
	return values, nil
}

func (p *Pipeline) checkLength(values []int) error {
	if len(values) != p.GeneLength() {
		return apperrors.Config("dispatch.Pipeline", "gene has %d values, expected %d", len(values), p.GeneLength())
	}
	return nil
}

// Fitness scores a gene as the negated total cost, so higher is better.
func (p *Pipeline) Fitness(values []int) (float64, error) {
	cost, err := p.Cost(values)
	if err != nil {
		return 0, err
	}
	return -cost, nil
}

// Cost returns the total cost of a gene net of terminal value.
func (p *Pipeline) Cost(values []int) (float64, error) {
	cost, _, err := p.run(values, false)
	return cost, err
}

// Evaluate runs a gene and returns the full breakdown.
func (p *Pipeline) Evaluate(values []int) (*Results, error) {
	_, res, err := p.run(values, true)
	return res, err
}

func (p *Pipeline) run(values []int, full bool) (float64, *Results, error) {
	if err := p.checkLength(values); err != nil {
		return 0, nil, err
	}

	states := make([]*capacity.State, len(p.order))
	for i, g := range p.order {
		states[i] = g.StartingState()
	}

	var results *Results
	if full {
		results = &Results{
			Periods:  make([]PeriodResults, 0, len(p.cfg.RunPeriods)),
			Terminal: make([]TerminalResult, 0, len(p.order)),
		}
	}

	residual := make([]float64, p.tsLength)
	var cost float64
	for pi, period := range p.cfg.RunPeriods {
		params := values[pi*p.paramCount : (pi+1)*p.paramCount]
		if p.demand != nil {
			copy(residual, p.demand)
		} else {
			for i := range residual {
				residual[i] = 0
			}
		}

		var pr PeriodResults
		if full {
			pr = PeriodResults{Period: period, Generators: make([]GeneratorResult, 0, len(p.order))}
		}

		var periodCost float64
		for gi, g := range p.order {
			s := p.spans[gi]
			res, err := g.CalculateTimePeriod(states[gi], period, params[s.Start:s.End:s.End], residual, full)
			if err != nil {
				return 0, nil, apperrors.Wrapf(err, "%s in period %d", g.Name(), period)
			}
			periodCost += res.Cost
			floats.Sub(residual, res.Supply)

			if full {
				pr.Carbon += res.Carbon
				if g.Details().Model == "demand" {
					pr.Demand += res.Other["total_demand"]
				}
				pr.Generators = append(pr.Generators, GeneratorResult{Name: g.Name(), PeriodResult: res})
			}
		}
		cost += periodCost

		if full {
			pr.Cost = periodCost
			if p.demand != nil {
				pr.Demand = floats.Sum(p.demand) * p.cfg.TimeScaleUpMult * p.cfg.TimestepHrs
			}
			results.Totals.Carbon += pr.Carbon
			results.Periods = append(results.Periods, pr)
		}
	}

	final := p.cfg.RunPeriods[len(p.cfg.RunPeriods)-1]
	var terminal float64
	for gi, g := range p.order {
		tv, perSite := g.TerminalValue(final, states[gi])
		terminal += tv
		if full {
			results.Terminal = append(results.Terminal, TerminalResult{Name: g.Name(), Total: tv, Sites: perSite})
		}
	}
	cost -= terminal

	if full {
		results.Totals.Cost = cost
		results.Totals.TerminalValue = terminal
	}
	return cost, results, nil
}

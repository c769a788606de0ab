package scenario

import (
	"sort"

	"go.uber.org/zap"

	"github.com/copyleftdev/gridplan/internal/data"
	"github.com/copyleftdev/gridplan/internal/dispatch"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
	"github.com/copyleftdev/gridplan/internal/generator"
	"github.com/copyleftdev/gridplan/internal/optimization/genetic"
)

// Plan is a scenario ready to run.
type Plan struct {
	Name            string
	Pipeline        *dispatch.Pipeline
	Algorithm       genetic.Config
	Iterations      int
	OutputFrequency int
}

// Build loads the data, constructs every generator in dispatch order and
// fixes the gene layout: every gene is exactly one parameter block per run
// period, and the initial population is drawn within each generator's start
// bounds.
func (s *Scenario) Build() (*Plan, error) {
	if len(s.Master.RunPeriods) == 0 {
		return nil, apperrors.Config("scenario.Build", "run_periods is required")
	}
	provider, err := s.provider()
	if err != nil {
		return nil, err
	}

	order := make([]generator.Generator, 0, len(s.Master.DispatchOrder))
	for _, name := range s.Master.DispatchOrder {
		sec, ok := s.sections[name]
		if !ok {
			return nil, apperrors.Config("scenario.Build", "dispatch_order names unknown section %s", name)
		}
		g, err := s.decodeGenerator(sec)
		if err != nil {
			return nil, err
		}
		order = append(order, g)
	}

	pipeline, err := dispatch.New(dispatch.Config{
		RunPeriods:      s.Master.RunPeriods,
		TimePeriodYrs:   s.Global.TimePeriodYrs,
		MinParamVal:     s.Algorithm.MinParamVal,
		MaxParamVal:     s.Algorithm.MaxParamVal,
		DemandDataName:  s.Master.DemandDataName,
		TimestepHrs:     s.Global.TimestepHrs,
		TimeScaleUpMult: s.Global.TimeScaleUpMult.OrDefault(1).At(s.Master.RunPeriods[0]),
	}, order, provider, dispatch.WithLogger(s.logger.Named("dispatch")))
	if err != nil {
		return nil, err
	}

	alg := s.Algorithm
	alg.MinLen = pipeline.GeneLength()
	alg.MaxLen = pipeline.GeneLength()
	alg.StartValuesMin, alg.StartValuesMax = pipeline.ParamBounds()
	if s.Master.StartGene != nil {
		alg.StartGene = append([]int(nil), s.Master.StartGene...)
	}
	if err := alg.Validate(); err != nil {
		return nil, err
	}

	s.logger.Info("scenario built",
		zap.String("name", s.Master.Name),
		zap.Strings("dispatch_order", pipeline.Names()),
		zap.Ints("run_periods", pipeline.RunPeriods()),
		zap.Int("gene_length", pipeline.GeneLength()))

	return &Plan{
		Name:            s.Master.Name,
		Pipeline:        pipeline,
		Algorithm:       alg,
		Iterations:      s.Master.Iterations,
		OutputFrequency: s.Master.OutputFrequency,
	}, nil
}

// provider builds the inline data. ts_length defaults to the length of the
// first series by name.
func (s *Scenario) provider() (*data.Static, error) {
	length := s.Data.TSLength
	if length == 0 && len(s.Data.Series) > 0 {
		names := make([]string, 0, len(s.Data.Series))
		for name := range s.Data.Series {
			names = append(names, name)
		}
		sort.Strings(names)
		length = len(s.Data.Series[names[0]])
	}
	return data.NewStatic(length, s.Data.Series, s.Data.Tables)
}

// NewEngine returns a genetic search scoring genes with the plan's pipeline.
func (p *Plan) NewEngine(opts ...genetic.Option) (*genetic.Engine, error) {
	return genetic.New(p.Algorithm, p.Pipeline.Fitness, opts...)
}

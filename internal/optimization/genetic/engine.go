// Package genetic implements a variable-length integer genetic search with
// rank-based culling, uniform crossover and convergence-triggered mutation.
package genetic

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
	"github.com/copyleftdev/gridplan/internal/optimization"
	"github.com/copyleftdev/gridplan/internal/optimization/evaluator"
)

type engineState int

const (
	stateConfigured engineState = iota + 1
	stateIterating
	stateFinalised
)

// Engine runs the search. It is not safe for concurrent use; the fitness
// function it calls must be.
type Engine struct {
	cfg       Config
	seed      int64
	fitness   optimization.FitnessFunc
	rng       *rand.Rand
	logger    *zap.Logger
	evalOpts  []evaluator.Option
	observers []func(optimization.IterationStats)

	state     engineState
	eval      optimization.Evaluator
	pop       *Population
	best      []optimization.GeneRecord
	clones    []optimization.CloneEvent
	iteration int
}

var _ optimization.Optimizer = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEvaluatorOptions passes options to the evaluator built in Prepare.
func WithEvaluatorOptions(opts ...evaluator.Option) Option {
	return func(e *Engine) { e.evalOpts = append(e.evalOpts, opts...) }
}

// WithObserver registers a callback run after every iteration.
func WithObserver(f func(optimization.IterationStats)) Option {
	return func(e *Engine) { e.observers = append(e.observers, f) }
}

// New validates cfg and builds the initial population. Nothing is scored
// until Prepare.
func New(cfg Config, fitness optimization.FitnessFunc, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fitness == nil {
		return nil, apperrors.Config("genetic.New", "fitness function is required")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e := &Engine{
		cfg:       cfg,
		seed:      seed,
		fitness:   fitness,
		rng:       rand.New(rand.NewSource(seed)),
		logger:    zap.NewNop(),
		iteration: -1,
		state:     stateConfigured,
	}
	for _, o := range opts {
		o(e)
	}
	e.pop = newPopulation(e.rng, &e.cfg)
	return e, nil
}

// Seed returns the seed actually used.
func (e *Engine) Seed() int64 { return e.seed }

// Config returns the configuration.
func (e *Engine) Config() Config { return e.cfg }

// Iteration returns the index of the last completed iteration, -1 before the first.
func (e *Engine) Iteration() int { return e.iteration }

// Prepare starts the evaluator and scores the initial population.
func (e *Engine) Prepare(ctx context.Context) error {
	if e.state != stateConfigured {
		return apperrors.Config("genetic.Engine.Prepare", "engine already prepared")
	}
	opts := append([]evaluator.Option{
		evaluator.WithLogger(e.logger),
		evaluator.WithTimeout(e.cfg.EvalTimeout),
	}, e.evalOpts...)
	eval, err := evaluator.New(e.fitness, e.cfg.Processes, opts...)
	if err != nil {
		return err
	}
	e.eval = eval
	e.state = stateIterating

	e.logger.Info("genetic search prepared",
		zap.Int64("seed", e.seed),
		zap.Int("pop_size", e.cfg.PopSize),
		zap.Int("processes", e.cfg.Processes),
		zap.Int("min_len", e.cfg.MinLen),
		zap.Int("max_len", e.cfg.MaxLen))
	return e.score(ctx)
}

func (e *Engine) score(ctx context.Context) error {
	scores, err := e.eval.Evaluate(ctx, e.pop.values())
	if err != nil {
		return err
	}
	for i, s := range scores {
		e.pop.Genes[i].Score = s
		e.pop.Genes[i].Scored = true
	}
	return nil
}

// Step runs one iteration: mutate, score, record the best gene, cull, breed
// and declone.
func (e *Engine) Step(ctx context.Context) (*optimization.IterationStats, error) {
	if e.state != stateIterating {
		return nil, apperrors.Config("genetic.Engine.Step", "iteration requested but the engine is not prepared")
	}

	e.iteration++
	e.pop.mutate(e.rng, &e.cfg)
	if err := e.score(ctx); err != nil {
		return nil, err
	}

	bi := e.pop.best()
	if bi < 0 {
		return nil, apperrors.Algorithm("genetic.Engine.Step", "population is empty at iteration %d", e.iteration)
	}
	bestGene := e.pop.Genes[bi]
	e.best = append(e.best, optimization.GeneRecord{
		Values:    append([]int(nil), bestGene.Values...),
		Score:     bestGene.Score,
		Iteration: e.iteration,
	})

	scores := make([]float64, len(e.pop.Genes))
	for i, g := range e.pop.Genes {
		scores[i] = g.Score
	}
	mean, std := stat.MeanStdDev(scores, nil)
	stats := &optimization.IterationStats{
		Iteration: e.iteration,
		Best:      bestGene.Score,
		Mean:      mean,
		StdDev:    std,
	}

	culled, err := e.pop.cull(e.rng, &e.cfg)
	stats.Culled = culled
	if err != nil {
		return stats, err
	}
	if err := e.pop.breed(e.rng, &e.cfg); err != nil {
		return stats, err
	}
	cloned, err := e.declone(ctx)
	if err != nil {
		return stats, err
	}
	stats.Cloned = cloned

	e.logger.Debug("iteration complete",
		zap.Int("iteration", e.iteration),
		zap.Float64("best", stats.Best),
		zap.Float64("mean", stats.Mean),
		zap.Int("culled", culled))
	for _, f := range e.observers {
		f(*stats)
	}
	return stats, nil
}

// declone records a clone event and applies NukePower extra mutation passes
// when the population has converged.
func (e *Engine) declone(ctx context.Context) (bool, error) {
	modal, ok := e.pop.cloneTest(e.cfg.PopSize)
	if !ok {
		return false, nil
	}
	scores, err := e.eval.Evaluate(ctx, [][]int{modal})
	if err != nil {
		return true, err
	}
	e.clones = append(e.clones, optimization.CloneEvent{
		Values:    modal,
		Score:     scores[0],
		Iteration: e.iteration,
	})
	for n := 0; n < e.cfg.NukePower; n++ {
		e.pop.mutate(e.rng, &e.cfg)
	}
	e.logger.Info("population converged, injecting mutation",
		zap.Int("iteration", e.iteration),
		zap.Float64("clone_score", scores[0]),
		zap.Int("nuke_power", e.cfg.NukePower))
	return true, nil
}

// Final rescores the population and returns it with the clone and best-gene
// histories.
func (e *Engine) Final(ctx context.Context) (*optimization.Result, error) {
	if e.state != stateIterating {
		return nil, apperrors.Config("genetic.Engine.Final", "final requested but the engine is not prepared")
	}
	if err := e.score(ctx); err != nil {
		return nil, err
	}

	res := &optimization.Result{
		Population: make([]optimization.GeneRecord, len(e.pop.Genes)),
		Best:       append([]optimization.GeneRecord(nil), e.best...),
		Clones:     append([]optimization.CloneEvent(nil), e.clones...),
		Iterations: e.iteration + 1,
	}
	for i, g := range e.pop.Genes {
		res.Population[i] = optimization.GeneRecord{
			Values:    append([]int(nil), g.Values...),
			Score:     g.Score,
			Iteration: e.iteration,
		}
	}
	return res, nil
}

// Close tears down the evaluator. The engine cannot be used afterwards.
func (e *Engine) Close() error {
	if e.state == stateFinalised {
		return nil
	}
	e.state = stateFinalised
	if e.eval == nil {
		return nil
	}
	e.logger.Debug("finalising genetic search", zap.Int("iterations", e.iteration+1))
	return e.eval.Close()
}

// BestEver returns the highest-scoring gene recorded so far, the earliest on
// ties. ok is false before the first iteration.
func (e *Engine) BestEver() (best optimization.GeneRecord, ok bool) {
	for i, g := range e.best {
		if i == 0 || g.Score > best.Score {
			best = g
			ok = true
		}
	}
	best.Values = append([]int(nil), best.Values...)
	return best, ok
}

// Genes returns a copy of the current population.
func (e *Engine) Genes() []Gene {
	out := make([]Gene, len(e.pop.Genes))
	for i, g := range e.pop.Genes {
		out[i] = *g.clone()
	}
	return out
}

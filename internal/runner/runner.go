// Package runner executes a built plan: it prepares the genetic search, runs
// the configured iterations, collects the final population and the dispatch
// breakdown of the best gene, and records the run.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
	"github.com/copyleftdev/gridplan/internal/metrics"
	"github.com/copyleftdev/gridplan/internal/optimization"
	"github.com/copyleftdev/gridplan/internal/optimization/evaluator"
	"github.com/copyleftdev/gridplan/internal/optimization/genetic"
	"github.com/copyleftdev/gridplan/internal/scenario"
	"github.com/copyleftdev/gridplan/internal/storage"
)

// Runner executes plans and saves them to a store.
type Runner struct {
	store    storage.Store
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	progress func(storage.Run)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records run progress on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithProgress is called with the run after every iteration.
func WithProgress(f func(storage.Run)) Option {
	return func(r *Runner) { r.progress = f }
}

// New returns a Runner saving to store. store must already be initialised.
func New(store storage.Store, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewRun returns a pending run with a fresh ID.
func (r *Runner) NewRun(name string) storage.Run {
	now := r.now().UTC()
	return storage.Run{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    storage.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Execute runs plan to completion, failure or cancellation of ctx, saving
// run as it goes. The returned run is always the last one saved; err is
// non-nil unless the run completed.
func (r *Runner) Execute(ctx context.Context, run storage.Run, plan *scenario.Plan) (storage.Run, error) {
	log := r.logger.With(zap.String("run_id", run.ID))

	run.Status = storage.StatusRunning
	run.Error = ""
	_ = r.save(ctx, &run, log)
	if r.metrics != nil {
		r.metrics.RunStarted()
	}

	result, err := r.search(ctx, &run, plan, log)
	switch {
	case err == nil:
		run.Status = storage.StatusCompleted
		run.Result = result
	case ctx.Err() != nil:
		run.Status = storage.StatusCancelled
		run.Error = ctx.Err().Error()
	default:
		run.Status = storage.StatusFailed
		run.Error = err.Error()
	}
	if r.metrics != nil {
		r.metrics.RunFinished(run.ID, string(run.Status))
	}

	// the run context may be gone; the final record must still be written
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if serr := r.save(saveCtx, &run, log); serr != nil && err == nil {
		err = serr
	}

	if err != nil {
		log.Error("run ended", zap.String("status", string(run.Status)), zap.Error(err))
		return run, err
	}
	log.Info("run completed",
		zap.Int("iterations", run.Iteration+1),
		zap.Float64("best_score", result.Best.Score))
	return run, nil
}

func (r *Runner) search(ctx context.Context, run *storage.Run, plan *scenario.Plan, log *zap.Logger) (*storage.Result, error) {
	opts := []genetic.Option{genetic.WithLogger(log.Named("genetic"))}
	if r.metrics != nil {
		opts = append(opts,
			genetic.WithEvaluatorOptions(evaluator.WithDurationObserver(r.metrics.ObserveEvaluation)),
			genetic.WithObserver(func(s optimization.IterationStats) {
				r.metrics.ObserveIteration(run.ID, s)
			}))
	}

	engine, err := plan.NewEngine(opts...)
	if err != nil {
		return nil, err
	}
	// workers are torn down on every path
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			log.Warn("closing engine", zap.Error(cerr))
		}
	}()

	run.Seed = engine.Seed()
	run.Iteration = -1
	if err := engine.Prepare(ctx); err != nil {
		return nil, err
	}

	var interim []optimization.GeneRecord
	for i := 0; i < plan.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrapf(err, "cancelled before iteration %d", i)
		}
		stats, err := engine.Step(ctx)
		if err != nil {
			return nil, err
		}

		run.Iteration = stats.Iteration
		if best, ok := engine.BestEver(); ok {
			score := best.Score
			run.BestScore = &score
		}
		run.UpdatedAt = r.now().UTC()
		if r.progress != nil {
			r.progress(*run)
		}

		if plan.OutputFrequency > 0 && i%plan.OutputFrequency == 0 {
			best, _ := engine.BestEver()
			interim = append(interim, best)
			log.Info("interim results",
				zap.Int("iteration", i),
				zap.Float64("best_score", best.Score),
				zap.Ints("best_gene", best.Values))
			_ = r.save(ctx, run, log)
		}
	}

	res, err := engine.Final(ctx)
	if err != nil {
		return nil, err
	}
	return r.result(plan, res, interim)
}

// result picks the best gene ever seen, falling back to the final population
// when no iteration ran, and breaks it down period by period.
func (r *Runner) result(plan *scenario.Plan, res *optimization.Result, interim []optimization.GeneRecord) (*storage.Result, error) {
	best, ok := res.BestEver()
	if !ok {
		for i, g := range res.Population {
			if i == 0 || g.Score > best.Score {
				best = g
				ok = true
			}
		}
	}
	if !ok {
		return nil, apperrors.Algorithm("runner.result", "final population is empty")
	}

	breakdown, err := plan.Pipeline.Evaluate(best.Values)
	if err != nil {
		return nil, err
	}
	return &storage.Result{
		Search:    res,
		Best:      best,
		Breakdown: breakdown,
		Interim:   interim,
	}, nil
}

func (r *Runner) save(ctx context.Context, run *storage.Run, log *zap.Logger) error {
	run.UpdatedAt = r.now().UTC()
	if err := r.store.SaveRun(ctx, *run); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn("saving run", zap.String("status", string(run.Status)), zap.Error(err))
		}
		return err
	}
	return nil
}

// Package evaluator scores candidate batches either in the calling goroutine
// or across a fixed pool of workers fed through a work queue.
package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
	"github.com/copyleftdev/gridplan/internal/optimization"
)

// DefaultTimeout bounds the wait for each result.
const DefaultTimeout = 60 * time.Second

type job struct {
	pos    int
	values []int
	stop   bool
}

type result struct {
	pos   int
	score float64
	err   error
}

// Option configures an evaluator.
type Option func(*options)

type options struct {
	timeout  time.Duration
	logger   *zap.Logger
	observer func(time.Duration)
}

// WithTimeout bounds the wait for each result.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDurationObserver is called with the duration of every fitness call.
func WithDurationObserver(f func(time.Duration)) Option {
	return func(o *options) { o.observer = f }
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Pool evaluates candidates on a fixed set of worker goroutines. Results are
// tagged with the submitting position, so out-of-order completion is fine.
// A batch that fails leaves the pool unusable; Close must still be called.
type Pool struct {
	fitness optimization.FitnessFunc
	workers int
	opts    options

	in  chan job
	out chan result
	wg  sync.WaitGroup

	mu     sync.Mutex
	broken error
	closed bool
}

// NewPool starts workers goroutines calling fitness.
func NewPool(fitness optimization.FitnessFunc, workers int, opts ...Option) (*Pool, error) {
	if workers <= 0 {
		return nil, apperrors.Config("evaluator.NewPool", "processes must be positive, got %d", workers)
	}
	if fitness == nil {
		return nil, apperrors.Config("evaluator.NewPool", "fitness function is required")
	}

	p := &Pool{
		fitness: fitness,
		workers: workers,
		opts:    buildOptions(opts),
		in:      make(chan job),
		out:     make(chan result, workers),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.opts.logger.Debug("worker pool started", zap.Int("workers", workers), zap.Duration("timeout", p.opts.timeout))
	return p, nil
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for j := range p.in {
		if j.stop {
			p.opts.logger.Debug("worker stopping", zap.Int("worker", id))
			return
		}
		score, err := call(p.fitness, j.values, p.opts.observer)
		p.out <- result{pos: j.pos, score: score, err: err}
	}
}

// Evaluate implements optimization.Evaluator.
func (p *Pool) Evaluate(ctx context.Context, genes [][]int) ([]float64, error) {
	const op = "evaluator.Pool.Evaluate"

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, apperrors.Errorf("worker pool is closed").WithOperation(op)
	}
	if p.broken != nil {
		return nil, apperrors.Wrap(p.broken, "worker pool unusable after earlier failure")
	}

	abort := make(chan struct{})
	defer close(abort)
	go func() {
		for i, g := range genes {
			select {
			case p.in <- job{pos: i, values: g}:
			case <-abort:
				return
			}
		}
	}()

	scores := make([]float64, len(genes))
	timer := time.NewTimer(p.opts.timeout)
	defer timer.Stop()
	for received := 0; received < len(genes); received++ {
		timer.Reset(p.opts.timeout)
		select {
		case r := <-p.out:
			if r.err != nil {
				p.broken = r.err
				return nil, apperrors.Wrapf(r.err, "evaluating gene %d", r.pos)
			}
			scores[r.pos] = r.score
		case <-timer.C:
			p.broken = apperrors.Timeout(op, "no result within %s after %d of %d genes",
				p.opts.timeout, received, len(genes))
			return nil, p.broken
		case <-ctx.Done():
			p.broken = ctx.Err()
			return nil, ctx.Err()
		}
	}
	return scores, nil
}

// Close sends one shutdown sentinel per worker and waits for them to exit.
func (p *Pool) Close() error {
	const op = "evaluator.Pool.Close"

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	wait := p.opts.timeout
	if wait < time.Second {
		wait = time.Second
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for i := 0; i < p.workers; i++ {
		select {
		case p.in <- job{stop: true}:
		case <-deadline.C:
			return apperrors.Timeout(op, "%d of %d workers did not accept shutdown", p.workers-i, p.workers)
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-deadline.C:
		return apperrors.Timeout(op, "workers did not exit within %s", wait)
	}
	p.opts.logger.Debug("worker pool stopped", zap.Int("workers", p.workers))
	return nil
}

// Serial evaluates candidates one at a time in the calling goroutine.
type Serial struct {
	fitness optimization.FitnessFunc
	opts    options
}

// NewSerial returns a Serial evaluator.
func NewSerial(fitness optimization.FitnessFunc, opts ...Option) *Serial {
	return &Serial{fitness: fitness, opts: buildOptions(opts)}
}

// Evaluate implements optimization.Evaluator.
func (s *Serial) Evaluate(ctx context.Context, genes [][]int) ([]float64, error) {
	scores := make([]float64, len(genes))
	for i, g := range genes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, err := call(s.fitness, g, s.opts.observer)
		if err != nil {
			return nil, apperrors.Wrapf(err, "evaluating gene %d", i)
		}
		scores[i] = score
	}
	return scores, nil
}

// Close implements optimization.Evaluator.
func (s *Serial) Close() error { return nil }

// New returns a Pool when processes > 0 and a Serial evaluator otherwise.
func New(fitness optimization.FitnessFunc, processes int, opts ...Option) (optimization.Evaluator, error) {
	if processes > 0 {
		return NewPool(fitness, processes, opts...)
	}
	return NewSerial(fitness, opts...), nil
}

func call(fitness optimization.FitnessFunc, values []int, observe func(time.Duration)) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fitness panicked: %v", r)
		}
	}()
	start := time.Now()
	score, err = fitness(values)
	if observe != nil {
		observe(time.Since(start))
	}
	return score, err
}

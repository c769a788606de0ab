package optimization

import (
	"context"
)

// Optimizer defines the lifecycle of a population-based search.
type Optimizer interface {
	// Prepare builds and scores the initial population and starts any
	// evaluation workers.
	Prepare(ctx context.Context) error

	// Step runs one full iteration.
	Step(ctx context.Context) (*IterationStats, error)

	// Final rescores the population and returns everything recorded so far.
	Final(ctx context.Context) (*Result, error)

	// Close releases evaluation workers. It is safe to call more than once.
	Close() error
}

// FitnessFunc scores a candidate; higher is better. It must be safe for
// concurrent use and must not modify values.
type FitnessFunc func(values []int) (float64, error)

// Evaluator scores a batch of candidates, returning scores in input order.
type Evaluator interface {
	Evaluate(ctx context.Context, genes [][]int) ([]float64, error)
	Close() error
}

// GeneRecord is a candidate captured at an iteration.
type GeneRecord struct {
	Values    []int   `json:"values"`
	Score     float64 `json:"score"`
	Iteration int     `json:"iteration"`
}

// CloneEvent records a converged population: the modal value at every
// position, its score, and when it happened.
type CloneEvent struct {
	Values    []int   `json:"values"`
	Score     float64 `json:"score"`
	Iteration int     `json:"iteration"`
}

// IterationStats summarises one iteration.
type IterationStats struct {
	Iteration int     `json:"iteration"`
	Best      float64 `json:"best"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	Culled    int     `json:"culled"`
	Cloned    bool    `json:"cloned"`
}

// Result is what a run hands to its consumer.
type Result struct {
	Population []GeneRecord `json:"population"`
	Best       []GeneRecord `json:"best"`
	Clones     []CloneEvent `json:"clones"`
	Iterations int          `json:"iterations"`
}

// BestEver returns the highest-scoring entry of the best-gene history, the
// earliest on ties. ok is false when the history is empty.
func (r *Result) BestEver() (best GeneRecord, ok bool) {
	for i, g := range r.Best {
		if i == 0 || g.Score > best.Score {
			best = g
			ok = true
		}
	}
	return best, ok
}

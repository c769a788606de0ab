// Package storage persists planning runs and their results.
package storage

import (
	"context"
	"time"

	"github.com/copyleftdev/gridplan/internal/dispatch"
	"github.com/copyleftdev/gridplan/internal/optimization"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Done reports whether the run can no longer change.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Run is a planning run as stored.
type Run struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Status    Status    `json:"status"`
	Iteration int       `json:"iteration"`
	BestScore *float64  `json:"best_score,omitempty"`
	Seed      int64     `json:"seed,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Result    *Result   `json:"result,omitempty"`
}

// Result is what a finished run hands to the store: the search history and
// the dispatch breakdown of its best gene.
type Result struct {
	Search    *optimization.Result      `json:"search"`
	Best      optimization.GeneRecord   `json:"best"`
	Breakdown *dispatch.Results         `json:"breakdown,omitempty"`
	Interim   []optimization.GeneRecord `json:"interim,omitempty"`
}

// Store saves and loads runs. SaveRun replaces any run with the same ID.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
	ListRuns(ctx context.Context) ([]Run, error)
	Close() error
}

package store

import (
	"context"
	"time"

	"github.com/stellarlinkco/agent-eval/internal/stats"
)

// RunWriter defines persistence for evaluation runs.
type RunWriter interface {
	SaveRun(ctx context.Context, run *RunRecord) error
}

// RunReader defines read access to stored runs.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)
	LatestRuns(ctx context.Context, n int) ([]*RunRecord, error)
}

// Store defines persistence for evaluation runs.
type Store interface {
	RunWriter
	RunReader
	Close() error
}

// RunRecord stores one evaluation run: the headline counters as queryable
// columns plus the full summary as a JSON document.
type RunRecord struct {
	ID               string
	CreatedAt        time.Time
	TotalEvaluations int
	Pass             int
	Fail             int
	Error            int
	Summary          *stats.RunSummary
}

// RunFilter filters run listings.
type RunFilter struct {
	Since time.Time
	Until time.Time
	Limit int
}

package domain

import (
	"context"
	"time"
)

// ResultBatch is a committed result table handed to the downstream sinks.
type ResultBatch struct {
	Domain      Domain
	RunID       string
	CompletedAt time.Time
	Table       Table
	Records     []ScoredRecord
}

// ResultSink receives every committed result batch. Sinks run after the result
// store is written; their failures are logged and never fail the run.
type ResultSink interface {
	Name() string
	Publish(ctx context.Context, batch ResultBatch) error
}

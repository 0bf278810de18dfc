package recorder

import (
	"context"
	"sync/atomic"

	"PillarVote/internal/model"
)

// NoopRecorder is used when SQLite is not configured. Run ids are still handed out
// so downstream code sees distinct runs.
type NoopRecorder struct {
	seq atomic.Int64
}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) CreateRun(_ context.Context, _ *model.Run) (int64, error) {
	return n.seq.Add(1), nil
}
func (n *NoopRecorder) RecordVotes(context.Context, int64, []model.Vote) error { return nil }
func (n *NoopRecorder) RecordComments(context.Context, int64, string, []model.AuditedComment) error {
	return nil
}
func (n *NoopRecorder) RecentRuns(context.Context, string, int) ([]model.Run, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                              { return nil }

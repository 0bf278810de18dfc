package recorder

import (
	"context"

	"PillarVote/internal/model"
)

// Recorder persists runs, their votes and the sentiment audit trail.
type Recorder interface {
	// CreateRun inserts the run header and returns its id.
	CreateRun(ctx context.Context, run *model.Run) (int64, error)
	RecordVotes(ctx context.Context, runID int64, votes []model.Vote) error
	// RecordComments ignores rows whose (run, comment id) pair already exists.
	RecordComments(ctx context.Context, runID int64, ticker string, rows []model.AuditedComment) error
	// RecentRuns returns up to limit runs for ticker, newest first, with their votes.
	RecentRuns(ctx context.Context, ticker string, limit int) ([]model.Run, error)
	Close() error
}

package sandbox

import (
	"context"

	"codejudge/internal/judge/sandbox/result"
)

// StatusUpdate carries intermediate judge progress.
type StatusUpdate struct {
	SubmissionID string
	State        result.JudgeState
	Language     string
	TotalTests   int
	DoneTests    int
}

// StatusReporter persists intermediate status updates.
type StatusReporter interface {
	ReportStatus(ctx context.Context, update StatusUpdate) error
}

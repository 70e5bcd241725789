package model

import "codejudge/internal/judge/sandbox/result"

// Progress reports how many test cases have been processed.
type Progress struct {
	TotalTests int `json:"total_tests"`
	DoneTests  int `json:"done_tests"`
}

// JudgeStatusResponse is the persisted, externally visible state of a submission.
// It never carries per-case output so hidden test cases stay confidential.
type JudgeStatusResponse struct {
	SubmissionID string            `json:"submission_id"`
	State        result.JudgeState `json:"state"`
	Language     string            `json:"language,omitempty"`
	Verdict      *result.Verdict   `json:"verdict,omitempty"`
	Progress     Progress          `json:"progress"`
	ErrorCode    int               `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ReceivedAt   int64             `json:"received_at,omitempty"`
	FinishedAt   int64             `json:"finished_at,omitempty"`
}

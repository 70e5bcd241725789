package model

import "codejudge/internal/judge/sandbox/result"

// JudgeMessage is the queue payload for an asynchronous judge task.
// Exactly one of Code and SourceKey is expected; SourceKey points into object storage.
type JudgeMessage struct {
	SubmissionID string            `json:"submission_id"`
	Language     string            `json:"language"`
	Code         string            `json:"code,omitempty"`
	SourceKey    string            `json:"source_key,omitempty"`
	Problem      ProblemDefinition `json:"problem"`
	UserID       string            `json:"user_id,omitempty"`
	ContestID    string            `json:"contest_id,omitempty"`
}

// VerdictEvent is published once a submission reaches a final verdict.
type VerdictEvent struct {
	SubmissionID string         `json:"submission_id"`
	ProblemID    string         `json:"problem_id"`
	UserID       string         `json:"user_id,omitempty"`
	ContestID    string         `json:"contest_id,omitempty"`
	Verdict      result.Verdict `json:"verdict"`
	FinishedAt   int64          `json:"finished_at"`
}

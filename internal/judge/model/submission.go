package model

import (
	"strings"

	appErr "codejudge/pkg/errors"
)

// MaxCodeBytes bounds the size of a staged source file.
const MaxCodeBytes = 256 * 1024

// SubmissionRequest is what a user sends: code plus the language it is written in.
type SubmissionRequest struct {
	ID       string `json:"submission_id"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Submission is one code attempt bound to the problem it is judged against.
// The engine treats it as an immutable value.
type Submission struct {
	ID               string
	ProblemID        string
	Code             string
	Language         string
	TestCases        []TestCase
	TimeLimitMs      int64
	MemoryLimitBytes int64
	PointsAvailable  int
}

// NewSubmission binds a request to a problem definition.
// The test case slice is copied so later changes by the caller are not observed.
func NewSubmission(req SubmissionRequest, problem ProblemDefinition) Submission {
	cases := make([]TestCase, len(problem.TestCases))
	copy(cases, problem.TestCases)
	return Submission{
		ID:               req.ID,
		ProblemID:        problem.ID,
		Code:             req.Code,
		Language:         req.Language,
		TestCases:        cases,
		TimeLimitMs:      problem.TimeLimitMs,
		MemoryLimitBytes: problem.MemoryLimitBytes,
		PointsAvailable:  problem.PointsAvailable,
	}
}

// Validate checks the invariants the engine relies on.
func (s Submission) Validate() error {
	if s.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if strings.TrimSpace(s.Code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if len(s.Code) > MaxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithDetail("limit_bytes", MaxCodeBytes)
	}
	if s.Language == "" {
		return appErr.ValidationError("language", "required")
	}
	if s.TimeLimitMs <= 0 {
		return appErr.ValidationError("time_limit_ms", "must be positive")
	}
	if s.MemoryLimitBytes < 0 {
		return appErr.ValidationError("memory_limit_bytes", "must not be negative")
	}
	if s.PointsAvailable < 0 {
		return appErr.ValidationError("points_available", "must not be negative")
	}
	if len(s.TestCases) == 0 {
		return appErr.ValidationError("test_cases", "at least one required")
	}
	return nil
}

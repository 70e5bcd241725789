// Package result defines sandbox execution results, per-case outcomes and verdicts.
package result

// JudgeState represents the lifecycle state of a submission.
type JudgeState string

const (
	StatePending  JudgeState = "Pending"
	StateRunning  JudgeState = "Running"
	StateFinished JudgeState = "Finished"
	StateFailed   JudgeState = "Failed"
)

// Status is the final judged outcome of a submission.
type Status string

const (
	StatusAccepted          Status = "accepted"
	StatusWrongAnswer       Status = "wrong_answer"
	StatusTimeLimitExceeded Status = "time_limit_exceeded"
	StatusRuntimeError      Status = "runtime_error"
)

// FailureKind classifies why one test case did not pass.
type FailureKind string

const (
	FailureNone         FailureKind = "none"
	FailureTimeout      FailureKind = "timeout"
	FailureRuntimeFault FailureKind = "runtime_fault"
	FailureMismatch     FailureKind = "mismatch"
)

// Terminal reports whether the failure stops further test cases from running.
func (k FailureKind) Terminal() bool {
	return k == FailureTimeout || k == FailureRuntimeFault
}

// RunResult captures raw data of one sandboxed execution.
type RunResult struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	Signaled   bool
	TimedOut   bool
	OomKilled  bool
	WallTimeMs int64
	TimeMs     int64
	MemoryKB   int64
}

// FaultSource tells operators where a runtime fault came from.
type FaultSource string

const (
	FaultProgram     FaultSource = "program"
	FaultProvision   FaultSource = "provision"
	FaultAdapter     FaultSource = "adapter"
	FaultOutOfMemory FaultSource = "oom"
)

// CaseOutcome is the classified result of running one test case.
type CaseOutcome struct {
	Passed     bool
	Output     string
	Failure    FailureKind
	Fault      FaultSource
	ExitCode   int
	WallTimeMs int64
	Detail     string
}

// Verdict is the final judged result of a submission.
type Verdict struct {
	Status          Status `json:"status"`
	TestCasesPassed int    `json:"testCasesPassed"`
	TotalTestCases  int    `json:"totalTestCases"`
	PointsEarned    int    `json:"pointsEarned"`
}

package model

// TestCase is one input / expected-output pair of a problem.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Hidden         bool   `json:"is_hidden"`
}

// ProblemDefinition is the judge-facing view of a problem, supplied by the problem service.
type ProblemDefinition struct {
	ID               string     `json:"id"`
	TimeLimitMs      int64      `json:"time_limit_ms"`
	MemoryLimitBytes int64      `json:"memory_limit_bytes"`
	PointsAvailable  int        `json:"points_available"`
	TestCases        []TestCase `json:"test_cases"`
}

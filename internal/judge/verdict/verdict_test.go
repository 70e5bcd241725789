package verdict_test

import (
	"testing"

	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/verdict"
)

func pass() result.CaseOutcome {
	return result.CaseOutcome{Passed: true, Failure: result.FailureNone}
}

func fail(kind result.FailureKind) result.CaseOutcome {
	return result.CaseOutcome{Failure: kind}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		outcomes []result.CaseOutcome
		total    int
		points   int
		want     result.Verdict
	}{
		{
			name:     "all_pass",
			outcomes: []result.CaseOutcome{pass(), pass(), pass()},
			total:    3,
			points:   100,
			want:     result.Verdict{Status: result.StatusAccepted, TestCasesPassed: 3, TotalTestCases: 3, PointsEarned: 100},
		},
		{
			name:     "one_mismatch_of_four",
			outcomes: []result.CaseOutcome{pass(), pass(), fail(result.FailureMismatch), pass()},
			total:    4,
			points:   100,
			want:     result.Verdict{Status: result.StatusWrongAnswer, TestCasesPassed: 3, TotalTestCases: 4, PointsEarned: 75},
		},
		{
			name:     "points_floor",
			outcomes: []result.CaseOutcome{pass(), fail(result.FailureMismatch), fail(result.FailureMismatch)},
			total:    3,
			points:   100,
			want:     result.Verdict{Status: result.StatusWrongAnswer, TestCasesPassed: 1, TotalTestCases: 3, PointsEarned: 33},
		},
		{
			name:     "timeout_after_passes",
			outcomes: []result.CaseOutcome{pass(), fail(result.FailureTimeout)},
			total:    5,
			points:   100,
			want:     result.Verdict{Status: result.StatusTimeLimitExceeded, TestCasesPassed: 0, TotalTestCases: 5, PointsEarned: 0},
		},
		{
			name:     "runtime_fault_first_case",
			outcomes: []result.CaseOutcome{fail(result.FailureRuntimeFault)},
			total:    3,
			points:   100,
			want:     result.Verdict{Status: result.StatusRuntimeError, TestCasesPassed: 0, TotalTestCases: 3, PointsEarned: 0},
		},
		{
			name:     "runtime_fault_outranks_timeout",
			outcomes: []result.CaseOutcome{fail(result.FailureTimeout), fail(result.FailureRuntimeFault)},
			total:    2,
			points:   10,
			want:     result.Verdict{Status: result.StatusRuntimeError, TestCasesPassed: 0, TotalTestCases: 2, PointsEarned: 0},
		},
		{
			name:     "all_mismatch",
			outcomes: []result.CaseOutcome{fail(result.FailureMismatch), fail(result.FailureMismatch)},
			total:    2,
			points:   50,
			want:     result.Verdict{Status: result.StatusWrongAnswer, TestCasesPassed: 0, TotalTestCases: 2, PointsEarned: 0},
		},
		{
			name:     "zero_points_available",
			outcomes: []result.CaseOutcome{pass()},
			total:    1,
			points:   0,
			want:     result.Verdict{Status: result.StatusAccepted, TestCasesPassed: 1, TotalTestCases: 1, PointsEarned: 0},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := verdict.Classify(tc.outcomes, tc.total, tc.points)
			if got != tc.want {
				t.Fatalf("Classify() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	outcomes := []result.CaseOutcome{pass(), fail(result.FailureMismatch), pass()}
	first := verdict.Classify(outcomes, 3, 90)
	for i := 0; i < 10; i++ {
		if got := verdict.Classify(outcomes, 3, 90); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}

func TestPoints(t *testing.T) {
	if got := verdict.Points(2, 3, 10); got != 6 {
		t.Fatalf("Points(2,3,10) = %d, want 6", got)
	}
	if got := verdict.Points(1, 0, 10); got != 0 {
		t.Fatalf("Points with zero total = %d, want 0", got)
	}
}

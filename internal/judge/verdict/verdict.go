// Package verdict maps ordered per-case outcomes to a final verdict and score.
// It performs no I/O and is the only place points are computed.
package verdict

import "codejudge/internal/judge/sandbox/result"

// Classify computes the verdict for outcomes, which must be in execution order.
// totalCases is the submission's full test case count, which may exceed
// len(outcomes) when execution stopped early.
func Classify(outcomes []result.CaseOutcome, totalCases int, pointsAvailable int) result.Verdict {
	if totalCases < len(outcomes) {
		totalCases = len(outcomes)
	}
	v := result.Verdict{TotalTestCases: totalCases}

	if firstFailure(outcomes, result.FailureRuntimeFault) {
		v.Status = result.StatusRuntimeError
		return v
	}
	if firstFailure(outcomes, result.FailureTimeout) {
		v.Status = result.StatusTimeLimitExceeded
		return v
	}

	passed := 0
	for _, o := range outcomes {
		if o.Passed {
			passed++
		}
	}
	v.TestCasesPassed = passed
	v.PointsEarned = Points(passed, totalCases, pointsAvailable)
	if totalCases > 0 && passed == totalCases {
		v.Status = result.StatusAccepted
	} else {
		v.Status = result.StatusWrongAnswer
	}
	return v
}

// Points returns floor(passed / total * available) using integer arithmetic.
func Points(passed, total, available int) int {
	if total <= 0 || passed <= 0 || available <= 0 {
		return 0
	}
	if passed > total {
		passed = total
	}
	return int(int64(passed) * int64(available) / int64(total))
}

func firstFailure(outcomes []result.CaseOutcome, kind result.FailureKind) bool {
	for _, o := range outcomes {
		if o.Failure == kind {
			return true
		}
	}
	return false
}

// Package sandbox orchestrates the execution of a submission across its test cases.
package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox/config"
	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/runner"
	"codejudge/internal/judge/sandbox/spec"
	"codejudge/internal/judge/verdict"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"
)

// Worker is the sandbox scheduling unit.
// It is safe for concurrent use by different submissions.
type Worker struct {
	runner         runner.Runner
	langRepo       config.LanguageSpecRepository
	slots          *SlotPool
	statusReporter StatusReporter
}

// NewWorker creates a new worker with required dependencies.
func NewWorker(runner runner.Runner, langRepo config.LanguageSpecRepository, slots *SlotPool) *Worker {
	return &Worker{
		runner:   runner,
		langRepo: langRepo,
		slots:    slots,
	}
}

// SetStatusReporter injects a status reporter for intermediate updates.
func (w *Worker) SetStatusReporter(reporter StatusReporter) {
	w.statusReporter = reporter
}

// Execute judges one submission. Cases run strictly in order, each in a fresh
// environment, and execution stops at the first timeout or runtime fault.
// Errors are returned only for invalid input or unavailable infrastructure.
func (w *Worker) Execute(ctx context.Context, sub model.Submission) (result.Verdict, error) {
	if err := sub.Validate(); err != nil {
		return result.Verdict{}, err
	}
	if w.runner == nil || w.langRepo == nil || w.slots == nil {
		return result.Verdict{}, appErr.New(appErr.JudgeSystemError).WithMessage("worker dependencies are not initialized")
	}

	lang, err := w.langRepo.GetLanguageSpec(ctx, sub.Language)
	if err != nil {
		return result.Verdict{}, err
	}
	cmd, err := lang.BuildCommand()
	if err != nil {
		return result.Verdict{}, appErr.Wrapf(err, appErr.JudgeSystemError, "build run command failed")
	}

	release, err := w.slots.Acquire(ctx)
	if err != nil {
		return result.Verdict{}, err
	}
	defer release()

	ctx = logger.WithSubmission(ctx, sub.ID)
	total := len(sub.TestCases)
	timeLimitMs := lang.ScaleTime(sub.TimeLimitMs)
	limits := spec.ResourceLimit{
		WallTimeMs:  timeLimitMs,
		MemoryBytes: lang.ScaleMemory(sub.MemoryLimitBytes),
	}
	w.reportStatus(ctx, sub, result.StateRunning, total, 0)

	start := time.Now()
	outcomes := make([]result.CaseOutcome, 0, total)
	for i, tc := range sub.TestCases {
		if ctx.Err() != nil {
			w.reportStatus(ctx, sub, result.StateFailed, total, len(outcomes))
			return result.Verdict{}, appErr.Wrapf(ctx.Err(), appErr.ServiceUnavailable, "judge interrupted")
		}

		outcome, err := w.runner.RunCase(ctx, runner.CaseRequest{
			Env: spec.EnvSpec{
				SubmissionID: sub.ID,
				CaseIndex:    i,
				Language:     lang.ID,
				Image:        lang.Image,
				SourceFile:   lang.SourceFile,
				Source:       sub.Code,
				Cmd:          cmd,
				Env:          lang.Env,
				Limits:       limits,
			},
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			TimeLimit:      time.Duration(timeLimitMs) * time.Millisecond,
		})
		if err != nil {
			w.reportStatus(ctx, sub, result.StateFailed, total, len(outcomes))
			if ctx.Err() != nil && !appErr.Is(err, appErr.SandboxUnavailable) {
				return result.Verdict{}, appErr.Wrapf(err, appErr.ServiceUnavailable, "judge interrupted")
			}
			logger.Error(ctx, "sandbox unavailable", zap.Int("case", i), zap.Error(err))
			return result.Verdict{}, err
		}

		outcomes = append(outcomes, outcome)
		w.reportStatus(ctx, sub, result.StateRunning, total, len(outcomes))
		if outcome.Failure.Terminal() {
			logger.Debug(ctx, "stopping early",
				zap.Int("case", i),
				zap.String("failure", string(outcome.Failure)),
				zap.Int("skipped", total-len(outcomes)),
			)
			break
		}
	}

	v := verdict.Classify(outcomes, total, sub.PointsAvailable)
	logger.Info(ctx, "submission judged",
		zap.String("language", lang.ID),
		zap.String("status", string(v.Status)),
		zap.Int("passed", v.TestCasesPassed),
		zap.Int("total", v.TotalTestCases),
		zap.Int("points", v.PointsEarned),
		zap.Int("executed", len(outcomes)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return v, nil
}

func (w *Worker) reportStatus(ctx context.Context, sub model.Submission, state result.JudgeState, total, done int) {
	if w.statusReporter == nil {
		return
	}
	update := StatusUpdate{
		SubmissionID: sub.ID,
		State:        state,
		Language:     sub.Language,
		TotalTests:   total,
		DoneTests:    done,
	}
	if err := w.statusReporter.ReportStatus(ctx, update); err != nil {
		logger.Warn(ctx, "report status failed", zap.Error(err))
	}
}

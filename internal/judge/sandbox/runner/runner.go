// Package runner supervises the execution of a single test case.
package runner

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"codejudge/internal/judge/sandbox/engine"
	"codejudge/internal/judge/sandbox/observer"
	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/spec"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"
)

const (
	destroyTimeout   = 30 * time.Second
	detailExcerptLen = 512
)

// CaseRequest describes one test case execution.
type CaseRequest struct {
	Env            spec.EnvSpec
	Input          string
	ExpectedOutput string
	TimeLimit      time.Duration
}

// Runner executes one test case in a fresh environment.
type Runner interface {
	RunCase(ctx context.Context, req CaseRequest) (result.CaseOutcome, error)
}

// Supervisor runs cases against a sandbox engine.
type Supervisor struct {
	eng     engine.Engine
	metrics observer.MetricsRecorder
}

// NewSupervisor creates a supervisor backed by the sandbox engine.
func NewSupervisor(eng engine.Engine) *Supervisor {
	return NewSupervisorWithObserver(eng, observer.NoopMetricsRecorder{})
}

// NewSupervisorWithObserver creates a supervisor with metrics hooks.
func NewSupervisorWithObserver(eng engine.Engine, metrics observer.MetricsRecorder) *Supervisor {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &Supervisor{eng: eng, metrics: metrics}
}

// RunCase provisions an environment, runs the program once and classifies the result.
// The environment is destroyed on every path. Only an unavailable sandbox runtime
// is returned as an error; every other failure becomes a runtime fault outcome.
func (s *Supervisor) RunCase(ctx context.Context, req CaseRequest) (result.CaseOutcome, error) {
	if s.eng == nil {
		return result.CaseOutcome{}, appErr.New(appErr.JudgeSystemError).WithMessage("sandbox engine is not initialized")
	}

	env, err := s.eng.Provision(ctx, req.Env)
	if err != nil {
		if appErr.Is(err, appErr.SandboxUnavailable) {
			return result.CaseOutcome{}, err
		}
		logger.Error(ctx, "provision environment failed", zap.Int("case", req.Env.CaseIndex), zap.Error(err))
		outcome := faultOutcome(result.FaultProvision, err)
		s.metrics.ObserveCase(ctx, req.Env.Language, outcome.Failure, 0, 0)
		return outcome, nil
	}
	defer s.destroy(ctx, env)

	runRes, err := s.eng.Run(ctx, env, req.Input, req.TimeLimit)
	if err != nil {
		if appErr.Is(err, appErr.SandboxUnavailable) || ctx.Err() != nil {
			return result.CaseOutcome{}, err
		}
		if runRes.TimedOut {
			// The program was killed for exceeding its limit before the adapter failed.
			logger.Warn(ctx, "run environment failed after timeout", zap.String("env", env.String()), zap.Error(err))
			outcome := Classify(runRes, req.ExpectedOutput)
			s.metrics.ObserveCase(ctx, req.Env.Language, outcome.Failure, runRes.WallTimeMs, runRes.MemoryKB)
			return outcome, nil
		}
		logger.Error(ctx, "run environment failed", zap.String("env", env.String()), zap.Error(err))
		outcome := faultOutcome(result.FaultAdapter, err)
		s.metrics.ObserveCase(ctx, req.Env.Language, outcome.Failure, runRes.WallTimeMs, runRes.MemoryKB)
		return outcome, nil
	}

	outcome := Classify(runRes, req.ExpectedOutput)
	s.metrics.ObserveCase(ctx, req.Env.Language, outcome.Failure, runRes.WallTimeMs, runRes.MemoryKB)
	if outcome.Failure == result.FailureRuntimeFault {
		logger.Warn(ctx, "program runtime fault",
			zap.String("env", env.String()),
			zap.String("fault", string(outcome.Fault)),
			zap.Int("exit_code", runRes.ExitCode),
			zap.Bool("signaled", runRes.Signaled),
			zap.String("stderr", excerpt(runRes.Stderr)),
		)
	}
	return outcome, nil
}

func (s *Supervisor) destroy(ctx context.Context, env *engine.Environment) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), destroyTimeout)
	defer cancel()
	if err := s.eng.Destroy(dctx, env); err != nil {
		logger.Error(ctx, "destroy environment failed", zap.String("env", env.String()), zap.Error(err))
	}
}

// Classify maps a raw run result to exactly one failure kind.
// Precedence: timeout, then abnormal termination, then output comparison.
func Classify(runRes result.RunResult, expected string) result.CaseOutcome {
	outcome := result.CaseOutcome{
		Output:     runRes.Stdout,
		ExitCode:   runRes.ExitCode,
		WallTimeMs: runRes.WallTimeMs,
	}
	switch {
	case runRes.TimedOut:
		outcome.Failure = result.FailureTimeout
	case runRes.OomKilled:
		outcome.Failure = result.FailureRuntimeFault
		outcome.Fault = result.FaultOutOfMemory
		outcome.Detail = excerpt(runRes.Stderr)
	case runRes.ExitCode != 0 || runRes.Signaled:
		outcome.Failure = result.FailureRuntimeFault
		outcome.Fault = result.FaultProgram
		outcome.Detail = excerpt(runRes.Stderr)
	case OutputMatches(runRes.Stdout, expected):
		outcome.Passed = true
		outcome.Failure = result.FailureNone
	default:
		outcome.Failure = result.FailureMismatch
	}
	return outcome
}

// OutputMatches compares outputs after trimming surrounding whitespace.
// Interior whitespace and case are significant.
func OutputMatches(actual, expected string) bool {
	return strings.TrimSpace(actual) == strings.TrimSpace(expected)
}

func faultOutcome(source result.FaultSource, err error) result.CaseOutcome {
	return result.CaseOutcome{
		Failure:  result.FailureRuntimeFault,
		Fault:    source,
		ExitCode: -1,
		Detail:   excerpt(err.Error()),
	}
}

func excerpt(s string) string {
	if len(s) <= detailExcerptLen {
		return s
	}
	return s[:detailExcerptLen]
}

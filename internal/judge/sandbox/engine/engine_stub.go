//go:build !linux

package engine

import (
	"context"
	"time"

	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/spec"
	appErr "codejudge/pkg/errors"
)

type stubEngine struct{}

// NewProcessEngine returns an engine that reports the process jail as unavailable.
func NewProcessEngine(cfg Config) (Engine, error) {
	return stubEngine{}, nil
}

func unsupported() error {
	return appErr.New(appErr.SandboxUnavailable).WithMessage("process sandbox is only supported on linux")
}

func (stubEngine) Provision(ctx context.Context, envSpec spec.EnvSpec) (*Environment, error) {
	return nil, unsupported()
}

func (stubEngine) Run(ctx context.Context, env *Environment, stdin string, timeLimit time.Duration) (result.RunResult, error) {
	return result.RunResult{}, unsupported()
}

func (stubEngine) Destroy(ctx context.Context, env *Environment) error {
	return nil
}

func (stubEngine) Ping(ctx context.Context) error {
	return unsupported()
}

//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/spec"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"
)

const (
	helperStderrMaxBytes = 4 * 1024
	helperWaitDelay      = time.Second
)

type processEngine struct {
	cfg Config
}

// NewProcessEngine creates a Linux engine that jails each run through the sandbox-init helper.
func NewProcessEngine(cfg Config) (Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	if !cfg.EnableNamespaces {
		logger.Warn(context.Background(), "process sandbox runs without namespaces; workspaces are not isolated from each other",
			zap.String("work_root", cfg.WorkRoot))
	}
	return &processEngine{cfg: cfg}, nil
}

func (e *processEngine) Ping(ctx context.Context) error {
	if _, err := exec.LookPath(e.cfg.HelperPath); err != nil {
		return appErr.Wrapf(err, appErr.SandboxUnavailable, "sandbox helper %s not found", e.cfg.HelperPath)
	}
	if e.cfg.EnableCgroup {
		if _, err := os.Stat(filepath.Join(e.cfg.CgroupRoot, "cgroup.procs")); err != nil {
			return appErr.Wrapf(err, appErr.SandboxUnavailable, "cgroup root %s is not usable", e.cfg.CgroupRoot)
		}
	}
	return nil
}

func (e *processEngine) Provision(ctx context.Context, envSpec spec.EnvSpec) (*Environment, error) {
	if err := validateEnvSpec(envSpec); err != nil {
		return nil, err
	}
	if err := e.Ping(ctx); err != nil {
		return nil, err
	}

	env, err := stageWorkspace(e.cfg.WorkRoot, envSpec)
	if err != nil {
		return nil, err
	}
	if e.cfg.EnableCgroup {
		cgroupPath, err := createRunCgroup(e.cfg.CgroupRoot, env.ID)
		if err != nil {
			_ = removeWorkspace(env)
			return nil, appErr.Wrapf(err, appErr.EnvironmentUnavailable, "create cgroup failed")
		}
		if err := applyCgroupLimits(cgroupPath, env.Limits, e.cfg.PIDsLimit); err != nil {
			_ = removeCgroup(cgroupPath)
			_ = removeWorkspace(env)
			return nil, appErr.Wrapf(err, appErr.EnvironmentUnavailable, "apply cgroup limits failed")
		}
		env.cgroupPath = cgroupPath
	}

	logger.Debug(ctx, "environment provisioned",
		zap.String("env_id", env.ID),
		zap.Int("case", env.CaseIndex),
		zap.String("cgroup", env.cgroupPath),
	)
	return env, nil
}

func (e *processEngine) Run(ctx context.Context, env *Environment, stdin string, timeLimit time.Duration) (result.RunResult, error) {
	if env == nil {
		return result.RunResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("environment is nil")
	}
	if !env.markUsed() {
		return result.RunResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("environment already used or destroyed")
	}

	stdinPath := filepath.Join(env.Dir, stdinFileName)
	stdoutPath := filepath.Join(env.Dir, stdoutFileName)
	stderrPath := filepath.Join(env.Dir, stderrFileName)
	if err := os.WriteFile(stdinPath, []byte(stdin), 0o644); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "stage stdin failed")
	}

	payload, err := json.Marshal(e.buildInitRequest(env, stdinPath, stdoutPath, stderrPath))
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "encode init request failed")
	}

	helperStderr := newCappedBuffer(helperStderrMaxBytes)
	cmd := exec.Command(e.cfg.HelperPath)
	cmd.SysProcAttr = buildSysProcAttr(e.cfg.EnableNamespaces)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	cmd.Stderr = helperStderr
	cmd.WaitDelay = helperWaitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return result.RunResult{}, appErr.Wrapf(err, appErr.SandboxUnavailable, "start sandbox helper failed")
		}
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "start sandbox helper failed")
	}
	pid := cmd.Process.Pid

	if env.cgroupPath != "" {
		if err := addProcessToCgroup(env.cgroupPath, pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", env.cgroupPath), zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if timeLimit > 0 {
			timer := time.NewTimer(timeLimit)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-ctx.Done():
			e.killTree(env, pid)
		case <-wallTimer:
			timedOut.Store(true)
			e.killTree(env, pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	// Children left in the process group must not outlive the run.
	e.killTree(env, pid)

	state := cmd.ProcessState
	if state == nil {
		return result.RunResult{}, appErr.Wrapf(waitErr, appErr.JudgeSystemError, "wait sandbox helper failed")
	}

	exit := summarizeExit(state)
	runResult := result.RunResult{
		ExitCode:   exit.exitCode,
		Signaled:   exit.signaled,
		TimedOut:   timedOut.Load(),
		WallTimeMs: time.Since(start).Milliseconds(),
		TimeMs:     exit.cpu.Milliseconds(),
		MemoryKB:   memoryPeakKB(env.cgroupPath, state),
		OomKilled:  wasOomKilled(env.cgroupPath),
		Stdout:     readCapturedFile(stdoutPath, e.cfg.StdoutStderrMaxBytes),
		Stderr:     readCapturedFile(stderrPath, e.cfg.StdoutStderrMaxBytes),
	}
	if runResult.TimedOut && runResult.ExitCode == 0 {
		runResult.ExitCode = -1
	}
	if msg := helperStderr.String(); msg != "" {
		logger.Warn(ctx, "sandbox helper reported an error", zap.String("env_id", env.ID), zap.String("stderr", msg))
		if runResult.Stderr == "" {
			runResult.Stderr = msg
		}
	}

	if !runResult.TimedOut && ctx.Err() != nil {
		return runResult, appErr.Wrapf(ctx.Err(), appErr.ServiceUnavailable, "run interrupted")
	}
	return runResult, nil
}

func (e *processEngine) Destroy(ctx context.Context, env *Environment) error {
	if env == nil || !env.markDestroyed() {
		return nil
	}
	var errs []error
	if env.cgroupPath != "" {
		_ = killCgroup(env.cgroupPath)
		if err := removeCgroup(env.cgroupPath); err != nil {
			errs = append(errs, err)
		}
	}
	if err := removeWorkspace(env); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return appErr.Wrapf(errors.Join(errs...), appErr.JudgeSystemError, "destroy environment %s failed", env.ID)
	}
	return nil
}

func (e *processEngine) buildInitRequest(env *Environment, stdinPath, stdoutPath, stderrPath string) spec.InitRequest {
	limits := env.Limits
	if limits.OutputBytes <= 0 {
		limits.OutputBytes = e.cfg.OutputFileMaxBytes
	}
	// RLIMIT_NPROC counts every process of the uid, so it is only safe inside a user namespace.
	limits.PIDs = 0
	if e.cfg.EnableNamespaces {
		limits.PIDs = e.cfg.PIDsLimit
	}
	return spec.InitRequest{
		RunSpec: spec.RunSpec{
			WorkDir:    env.WorkDir,
			Cmd:        env.Cmd,
			Env:        env.Env,
			StdinPath:  stdinPath,
			StdoutPath: stdoutPath,
			StderrPath: stderrPath,
			Limits:     limits,
		},
		Isolation: spec.IsolationProfile{
			RootFS:         e.cfg.RootFS,
			SeccompProfile: e.cfg.SeccompProfile,
			DisableNetwork: true,
		},
		EnableSeccomp: e.cfg.EnableSeccomp,
		EnableNs:      e.cfg.EnableNamespaces,
	}
}

func (e *processEngine) killTree(env *Environment, pid int) {
	killProcessGroup(pid)
	if env.cgroupPath != "" {
		_ = killCgroup(env.cgroupPath)
	}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func buildSysProcAttr(enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	attr.Cloneflags = uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS |
		syscall.CLONE_NEWIPC | syscall.CLONE_NEWNET | syscall.CLONE_NEWUSER)
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}

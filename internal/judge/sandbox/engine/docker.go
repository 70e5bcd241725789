package engine

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/spec"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"
)

const (
	defaultContainerWorkDir = "/work"
	containerKillGrace      = 5 * time.Second
	outputDrainTimeout      = time.Second
	containerDestroyTimeout = 10 * time.Second
)

// DockerConfig controls the container backend.
type DockerConfig struct {
	Host             string `yaml:"host"`
	ContainerWorkDir string `yaml:"container_work_dir"`
	NanoCPUs         int64  `yaml:"nano_cpus"`
	User             string `yaml:"user"`
}

// containerAPI is the subset of the docker client used by the container backend.
type containerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

type dockerEngine struct {
	cfg Config
	api containerAPI
}

// NewDockerClient builds a docker client from the environment, overridden by host when set.
func NewDockerClient(host string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxUnavailable, "create docker client failed")
	}
	return cli, nil
}

// NewDockerEngine creates an engine that runs every environment in its own container.
func NewDockerEngine(cfg Config, api containerAPI) (Engine, error) {
	if api == nil {
		return nil, fmt.Errorf("docker api is required")
	}
	cfg = cfg.withDefaults()
	if cfg.Docker.ContainerWorkDir == "" {
		cfg.Docker.ContainerWorkDir = defaultContainerWorkDir
	}
	return &dockerEngine{cfg: cfg, api: api}, nil
}

func (e *dockerEngine) Ping(ctx context.Context) error {
	if _, err := e.api.Ping(ctx); err != nil {
		return appErr.Wrapf(err, appErr.SandboxUnavailable, "docker daemon unreachable")
	}
	return nil
}

func (e *dockerEngine) Provision(ctx context.Context, envSpec spec.EnvSpec) (*Environment, error) {
	if err := validateEnvSpec(envSpec); err != nil {
		return nil, err
	}
	if envSpec.Image == "" {
		return nil, appErr.ValidationError("image", "required")
	}
	if err := e.Ping(ctx); err != nil {
		return nil, err
	}

	env, err := stageWorkspace(e.cfg.WorkRoot, envSpec)
	if err != nil {
		return nil, err
	}

	cfg, hostCfg := e.containerConfig(env)
	resp, err := e.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "codejudge-"+env.ID)
	if err != nil {
		_ = removeWorkspace(env)
		if client.IsErrConnectionFailed(err) {
			return nil, appErr.Wrapf(err, appErr.SandboxUnavailable, "docker daemon unreachable")
		}
		return nil, appErr.Wrapf(err, appErr.EnvironmentUnavailable, "create container failed")
	}
	env.containerID = resp.ID
	for _, w := range resp.Warnings {
		logger.Warn(ctx, "container create warning", zap.String("env_id", env.ID), zap.String("warning", w))
	}

	logger.Debug(ctx, "container provisioned",
		zap.String("env_id", env.ID),
		zap.String("container_id", resp.ID),
		zap.String("image", env.Image),
	)
	return env, nil
}

func (e *dockerEngine) containerConfig(env *Environment) (*container.Config, *container.HostConfig) {
	workDir := e.cfg.Docker.ContainerWorkDir
	cfg := &container.Config{
		Image:           env.Image,
		Cmd:             env.Cmd,
		Env:             env.Env,
		WorkingDir:      workDir,
		User:            e.cfg.Docker.User,
		NetworkDisabled: true,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		OpenStdin:       true,
		StdinOnce:       true,
	}

	pids := env.Limits.PIDs
	if pids <= 0 {
		pids = e.cfg.PIDsLimit
	}
	hostCfg := &container.HostConfig{
		Binds:       []string{env.WorkDir + ":" + path.Clean(workDir)},
		NetworkMode: "none",
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Resources: container.Resources{
			PidsLimit: &pids,
			NanoCPUs:  e.cfg.Docker.NanoCPUs,
		},
	}
	if env.Limits.MemoryBytes > 0 {
		hostCfg.Resources.Memory = env.Limits.MemoryBytes
		hostCfg.Resources.MemorySwap = env.Limits.MemoryBytes
	}
	return cfg, hostCfg
}

func (e *dockerEngine) Run(ctx context.Context, env *Environment, stdin string, timeLimit time.Duration) (result.RunResult, error) {
	if env == nil || env.containerID == "" {
		return result.RunResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("environment has no container")
	}
	if !env.markUsed() {
		return result.RunResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("environment already used or destroyed")
	}
	id := env.containerID

	attach, err := e.api.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return result.RunResult{}, e.runtimeError(err, "attach container failed")
	}
	defer attach.Close()

	// Waiting must be registered before start or a fast exit is missed.
	waitCtx, cancelWait := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWait()
	waitCh, waitErrCh := e.api.ContainerWait(waitCtx, id, container.WaitConditionNextExit)

	stdout := newCappedBuffer(e.cfg.StdoutStderrMaxBytes)
	stderr := newCappedBuffer(e.cfg.StdoutStderrMaxBytes)
	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		_, _ = stdcopy.StdCopy(stdout, stderr, attach.Reader)
	}()

	start := time.Now()
	if err := e.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return result.RunResult{}, e.runtimeError(err, "start container failed")
	}

	go func() {
		// A program that never reads stdin is not an error.
		_, _ = io.WriteString(attach.Conn, stdin)
		_ = attach.CloseWrite()
	}()

	var wallTimer <-chan time.Time
	if timeLimit > 0 {
		timer := time.NewTimer(timeLimit)
		defer timer.Stop()
		wallTimer = timer.C
	}

	var (
		status   container.WaitResponse
		timedOut bool
		runErr   error
	)
	select {
	case status = <-waitCh:
	case err := <-waitErrCh:
		e.kill(ctx, id)
		return result.RunResult{}, e.runtimeError(err, "wait container failed")
	case <-wallTimer:
		timedOut = true
		e.kill(ctx, id)
		status = e.awaitExit(ctx, id, waitCh, waitErrCh)
	case <-ctx.Done():
		e.kill(ctx, id)
		status = e.awaitExit(ctx, id, waitCh, waitErrCh)
		runErr = appErr.Wrapf(ctx.Err(), appErr.ServiceUnavailable, "run interrupted")
	}
	wallTime := time.Since(start).Milliseconds()

	select {
	case <-copyDone:
	case <-time.After(outputDrainTimeout):
		logger.Warn(ctx, "container output stream did not close", zap.String("env_id", env.ID))
	}

	runResult := result.RunResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   int(status.StatusCode),
		Signaled:   status.StatusCode > 128 && status.StatusCode <= 128+64,
		TimedOut:   timedOut,
		WallTimeMs: wallTime,
	}
	if status.Error != nil && status.Error.Message != "" {
		logger.Warn(ctx, "container wait reported an error", zap.String("env_id", env.ID), zap.String("error", status.Error.Message))
	}
	if info, err := e.api.ContainerInspect(context.WithoutCancel(ctx), id); err == nil && info.ContainerJSONBase != nil && info.State != nil {
		runResult.OomKilled = info.State.OOMKilled
	}
	if runResult.TimedOut && runResult.ExitCode == 0 {
		runResult.ExitCode = -1
	}
	return runResult, runErr
}

func (e *dockerEngine) Destroy(ctx context.Context, env *Environment) error {
	if env == nil || !env.markDestroyed() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), containerDestroyTimeout)
	defer cancel()

	var removeErr error
	if env.containerID != "" {
		err := e.api.ContainerRemove(ctx, env.containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
		if err != nil && !client.IsErrNotFound(err) {
			removeErr = appErr.Wrapf(err, appErr.JudgeSystemError, "remove container %s failed", env.containerID)
		}
	}
	if err := removeWorkspace(env); err != nil && removeErr == nil {
		removeErr = appErr.Wrapf(err, appErr.JudgeSystemError, "remove workspace failed")
	}
	return removeErr
}

func (e *dockerEngine) kill(ctx context.Context, id string) {
	if err := e.api.ContainerKill(context.WithoutCancel(ctx), id, "KILL"); err != nil && !client.IsErrNotFound(err) {
		logger.Warn(ctx, "kill container failed", zap.String("container_id", id), zap.Error(err))
	}
}

// awaitExit collects the exit status of a container that has already been killed.
// The kill decided the outcome, so a broken wait stream only costs the exit code.
func (e *dockerEngine) awaitExit(ctx context.Context, id string, waitCh <-chan container.WaitResponse, waitErrCh <-chan error) container.WaitResponse {
	select {
	case status := <-waitCh:
		return status
	case err := <-waitErrCh:
		logger.Warn(ctx, "wait container after kill failed", zap.String("container_id", id), zap.Error(err))
	case <-time.After(containerKillGrace):
		logger.Warn(ctx, "container did not exit after kill", zap.String("container_id", id))
	}
	return container.WaitResponse{StatusCode: -1}
}

func (e *dockerEngine) runtimeError(err error, msg string) error {
	if client.IsErrConnectionFailed(err) {
		return appErr.Wrapf(err, appErr.SandboxUnavailable, "%s", msg)
	}
	return appErr.Wrapf(err, appErr.JudgeSystemError, "%s", msg)
}

// Package engine provisions, runs and destroys isolated execution environments.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/spec"
)

const (
	BackendProcess = "process"
	BackendDocker  = "docker"

	defaultStdoutStderrMaxBytes int64 = 64 * 1024
	defaultOutputFileMaxBytes   int64 = 16 * 1024 * 1024
	defaultPIDsLimit            int64 = 64
)

// Engine is the sandbox runtime adapter.
// An Environment is used for exactly one Run and must always be passed to Destroy.
type Engine interface {
	// Provision creates a fresh environment with the source staged inside.
	Provision(ctx context.Context, envSpec spec.EnvSpec) (*Environment, error)
	// Run feeds stdin to the staged program and captures its output until exit or timeout.
	// Misbehavior of the program is reported in the result, never as an error.
	Run(ctx context.Context, env *Environment, stdin string, timeLimit time.Duration) (result.RunResult, error)
	// Destroy releases everything held by env. It is safe to call more than once.
	Destroy(ctx context.Context, env *Environment) error
	// Ping reports whether the isolation runtime is reachable.
	Ping(ctx context.Context) error
}

// Environment is a provisioned, single-use execution environment.
type Environment struct {
	ID           string
	SubmissionID string
	CaseIndex    int
	Dir          string
	WorkDir      string
	Cmd          []string
	Env          []string
	Image        string
	Limits       spec.ResourceLimit

	cgroupPath  string
	containerID string

	mu        sync.Mutex
	used      bool
	destroyed bool
}

func (e *Environment) String() string {
	return fmt.Sprintf("%s/%d/%s", e.SubmissionID, e.CaseIndex, e.ID)
}

// markUsed reports false when the environment was already run or destroyed.
func (e *Environment) markUsed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.used || e.destroyed {
		return false
	}
	e.used = true
	return true
}

// markDestroyed reports false when the environment was already destroyed.
func (e *Environment) markDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return false
	}
	e.destroyed = true
	return true
}

// Config controls sandbox engine behavior.
type Config struct {
	Backend              string       `yaml:"backend"`
	WorkRoot             string       `yaml:"work_root"`
	HelperPath           string       `yaml:"helper_path"`
	CgroupRoot           string       `yaml:"cgroup_root"`
	RootFS               string       `yaml:"rootfs"`
	SeccompProfile       string       `yaml:"seccomp_profile"`
	StdoutStderrMaxBytes int64        `yaml:"stdout_stderr_max_bytes"`
	OutputFileMaxBytes   int64        `yaml:"output_file_max_bytes"`
	PIDsLimit            int64        `yaml:"pids_limit"`
	EnableSeccomp        bool         `yaml:"enable_seccomp"`
	EnableCgroup         bool         `yaml:"enable_cgroup"`
	// EnableNamespaces isolates process-backend runs in fresh mount/pid/net/user
	// namespaces. Without it every run shares the service uid and can see other
	// workspaces under WorkRoot; only use that for local development.
	EnableNamespaces     bool         `yaml:"enable_namespaces"`
	Docker               DockerConfig `yaml:"docker"`
}

func (c Config) withDefaults() Config {
	if c.StdoutStderrMaxBytes <= 0 {
		c.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if c.OutputFileMaxBytes <= 0 {
		c.OutputFileMaxBytes = defaultOutputFileMaxBytes
	}
	if c.PIDsLimit <= 0 {
		c.PIDsLimit = defaultPIDsLimit
	}
	if c.HelperPath == "" {
		c.HelperPath = "sandbox-init"
	}
	return c
}

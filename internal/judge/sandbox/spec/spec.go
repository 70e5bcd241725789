// Package spec defines environment specifications and resource limits.
package spec

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	WallTimeMs  int64
	CPUTimeMs   int64
	MemoryBytes int64
	StackMB     int64
	OutputBytes int64
	PIDs        int64
}

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// EnvSpec describes one execution environment to provision.
// Every test case gets its own environment built from a fresh EnvSpec.
type EnvSpec struct {
	SubmissionID string
	CaseIndex    int
	Language     string
	Image        string
	SourceFile   string
	Source       string
	Cmd          []string
	Env          []string
	Limits       ResourceLimit
}

// IsolationProfile carries the process jail settings handed to the init helper.
type IsolationProfile struct {
	RootFS         string
	SeccompProfile string
	DisableNetwork bool
}

// RunSpec is the execution request decoded by the sandbox init helper.
type RunSpec struct {
	WorkDir    string
	Cmd        []string
	Env        []string
	StdinPath  string
	StdoutPath string
	StderrPath string
	BindMounts []MountSpec
	Limits     ResourceLimit
}

// InitRequest is written as JSON to the init helper's stdin.
type InitRequest struct {
	RunSpec       RunSpec
	Isolation     IsolationProfile
	EnableSeccomp bool
	EnableNs      bool
}

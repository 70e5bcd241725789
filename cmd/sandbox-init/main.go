//go:build linux

// Command sandbox-init is exec'd by the process sandbox engine. It reads a
// spec.InitRequest from stdin, jails itself and replaces itself with the
// submitted program.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"codejudge/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

const defaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

func main() {
	if err := run(os.Stdin); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "sandbox-init:", err)
		os.Exit(1)
	}
}

func run(in io.Reader) error {
	req, err := decodeRequest(in)
	if err != nil {
		return err
	}
	if err := jail(req); err != nil {
		return err
	}
	if err := os.Chdir(req.RunSpec.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := applyRlimits(req.RunSpec.Limits); err != nil {
		return err
	}
	if err := redirectIO(req.RunSpec); err != nil {
		return err
	}

	env := buildEnv(req.RunSpec.Env)
	cmdPath, err := lookPath(req.RunSpec.Cmd[0], env)
	if err != nil {
		return err
	}
	// The filter goes last so the setup syscalls above are not subject to it.
	if req.EnableSeccomp && req.Isolation.SeccompProfile != "" {
		if err := applySeccomp(req.Isolation.SeccompProfile); err != nil {
			return err
		}
	}
	return unix.Exec(cmdPath, req.RunSpec.Cmd, env)
}

func decodeRequest(r io.Reader) (spec.InitRequest, error) {
	var req spec.InitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return spec.InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	if len(req.RunSpec.Cmd) == 0 || req.RunSpec.Cmd[0] == "" {
		return spec.InitRequest{}, fmt.Errorf("command is required")
	}
	if req.RunSpec.WorkDir == "" {
		return spec.InitRequest{}, fmt.Errorf("work dir is required")
	}
	if !req.EnableNs && (req.Isolation.RootFS != "" || len(req.RunSpec.BindMounts) > 0) {
		return spec.InitRequest{}, fmt.Errorf("rootfs and bind mounts require namespaces")
	}
	return req, nil
}

func applyRlimits(limits spec.ResourceLimit) error {
	set := func(name string, resource int, value uint64) error {
		if err := unix.Setrlimit(resource, &unix.Rlimit{Cur: value, Max: value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", name, err)
		}
		return nil
	}
	if limits.CPUTimeMs > 0 {
		if err := set("cpu", unix.RLIMIT_CPU, uint64((limits.CPUTimeMs+999)/1000)); err != nil {
			return err
		}
	}
	if limits.OutputBytes > 0 {
		if err := set("fsize", unix.RLIMIT_FSIZE, uint64(limits.OutputBytes)); err != nil {
			return err
		}
	}
	if limits.StackMB > 0 {
		if err := set("stack", unix.RLIMIT_STACK, uint64(limits.StackMB)<<20); err != nil {
			return err
		}
	}
	if limits.PIDs > 0 {
		if err := set("nproc", unix.RLIMIT_NPROC, uint64(limits.PIDs)); err != nil {
			return err
		}
	}
	return set("core", unix.RLIMIT_CORE, 0)
}

func redirectIO(runSpec spec.RunSpec) error {
	targets := []struct {
		name  string
		path  string
		flags int
		fd    int
	}{
		{"stdin", runSpec.StdinPath, os.O_RDONLY, 0},
		{"stdout", runSpec.StdoutPath, os.O_CREATE | os.O_WRONLY | os.O_TRUNC, 1},
		{"stderr", runSpec.StderrPath, os.O_CREATE | os.O_WRONLY | os.O_TRUNC, 2},
	}
	for _, t := range targets {
		path := t.path
		if path == "" {
			path = os.DevNull
		}
		f, err := os.OpenFile(path, t.flags, 0o644)
		if err != nil {
			return fmt.Errorf("open %s: %w", t.name, err)
		}
		err = unix.Dup2(int(f.Fd()), t.fd)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("dup %s: %w", t.name, err)
		}
	}
	return nil
}

func buildEnv(env []string) []string {
	out := make([]string, 0, len(env)+1)
	hasPath := false
	for _, kv := range env {
		if !strings.Contains(kv, "=") {
			continue
		}
		if strings.HasPrefix(kv, "PATH=") {
			hasPath = true
		}
		out = append(out, kv)
	}
	if !hasPath {
		out = append(out, defaultPath)
	}
	return out
}

// lookPath resolves name against the PATH of the program's environment, not the helper's.
func lookPath(name string, env []string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	for _, kv := range env {
		if dirs, ok := strings.CutPrefix(kv, "PATH="); ok {
			for _, dir := range strings.Split(dirs, ":") {
				candidate := dir + "/" + name
				if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
					return candidate, nil
				}
			}
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("resolve command: %w", err)
	}
	return path, nil
}

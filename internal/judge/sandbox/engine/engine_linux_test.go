//go:build linux

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codejudge/internal/judge/sandbox/spec"
	appErr "codejudge/pkg/errors"
)

// fakeHelper stands in for sandbox-init: it reads the init request and runs body
// with $OUT, $ERR and $IN pointing at the paths the engine asked for.
func fakeHelper(t *testing.T, body string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	script := `#!/bin/sh
req=$(cat)
field() { printf '%s' "$req" | sed -n "s/.*\"$1\":\"\([^\"]*\)\".*/\1/p"; }
OUT=$(field StdoutPath)
ERR=$(field StderrPath)
IN=$(field StdinPath)
WORK=$(field WorkDir)
cd "$WORK" || exit 97
` + body + "\n"
	path := filepath.Join(t.TempDir(), "fake-init")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write helper: %v", err)
	}
	return path
}

func newTestEngine(t *testing.T, helperBody string) Engine {
	t.Helper()
	eng, err := NewProcessEngine(Config{
		WorkRoot:   t.TempDir(),
		HelperPath: fakeHelper(t, helperBody),
	})
	if err != nil {
		t.Fatalf("NewProcessEngine failed: %v", err)
	}
	return eng
}

func testEnvSpec() spec.EnvSpec {
	return spec.EnvSpec{
		SubmissionID: "sub-1",
		SourceFile:   "solution.js",
		Source:       "console.log(1)",
		Cmd:          []string{"node", "solution.js"},
	}
}

func TestProcessEngineEchoesStdin(t *testing.T) {
	eng := newTestEngine(t, `cat "$IN" > "$OUT"; cat solution.js >> "$OUT"`)
	ctx := context.Background()

	env, err := eng.Provision(ctx, testEnvSpec())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	defer eng.Destroy(ctx, env)

	res, err := eng.Run(ctx, env, "5\n", time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.TimedOut || res.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Stdout != "5\nconsole.log(1)" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}

func TestProcessEngineReportsExitCodeAndStderr(t *testing.T) {
	eng := newTestEngine(t, `echo boom > "$ERR"; exit 3`)
	ctx := context.Background()

	env, err := eng.Provision(ctx, testEnvSpec())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	defer eng.Destroy(ctx, env)

	res, err := eng.Run(ctx, env, "", time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 3 || res.Stderr != "boom\n" || res.TimedOut {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestProcessEngineKillsTreeOnTimeout(t *testing.T) {
	eng := newTestEngine(t, `sleep 30 & sleep 30; echo done > "$OUT"`)
	ctx := context.Background()

	env, err := eng.Provision(ctx, testEnvSpec())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	defer eng.Destroy(ctx, env)

	start := time.Now()
	res, err := eng.Run(ctx, env, "", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if res.ExitCode == 0 {
		t.Fatalf("expected non-zero exit code after kill")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("run was not killed promptly: %s", elapsed)
	}
	if res.Stdout != "" {
		t.Fatalf("program should not have finished: %q", res.Stdout)
	}
}

func TestProcessEngineDestroyIsIdempotent(t *testing.T) {
	eng := newTestEngine(t, `true`)
	ctx := context.Background()

	env, err := eng.Provision(ctx, testEnvSpec())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.WorkDir, "solution.js")); err != nil {
		t.Fatalf("source not staged: %v", err)
	}
	if err := eng.Destroy(ctx, env); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if err := eng.Destroy(ctx, env); err != nil {
		t.Fatalf("second Destroy failed: %v", err)
	}
	if _, err := os.Stat(env.Dir); !os.IsNotExist(err) {
		t.Fatalf("workspace still present: %v", err)
	}
	if _, err := eng.Run(ctx, env, "", time.Second); err == nil {
		t.Fatalf("expected error when running a destroyed environment")
	}
}

func TestProcessEngineEnvironmentsAreFresh(t *testing.T) {
	eng := newTestEngine(t, `ls > "$OUT"; touch leftover`)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		env, err := eng.Provision(ctx, testEnvSpec())
		if err != nil {
			t.Fatalf("Provision failed: %v", err)
		}
		res, err := eng.Run(ctx, env, "", time.Second)
		_ = eng.Destroy(ctx, env)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if res.Stdout != "solution.js\n" {
			t.Fatalf("run %d saw state from a previous environment: %q", i, res.Stdout)
		}
	}
}

func TestProcessEngineMissingHelper(t *testing.T) {
	eng, err := NewProcessEngine(Config{
		WorkRoot:   t.TempDir(),
		HelperPath: filepath.Join(t.TempDir(), "missing-helper"),
	})
	if err != nil {
		t.Fatalf("NewProcessEngine failed: %v", err)
	}
	_, err = eng.Provision(context.Background(), testEnvSpec())
	if appErr.GetCode(err) != appErr.SandboxUnavailable {
		t.Fatalf("expected SandboxUnavailable, got %v", err)
	}
}

func TestProcessEngineUnwritableWorkRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	eng, err := NewProcessEngine(Config{WorkRoot: root, HelperPath: fakeHelper(t, "true")})
	if err != nil {
		t.Fatalf("NewProcessEngine failed: %v", err)
	}
	_, err = eng.Provision(context.Background(), testEnvSpec())
	if appErr.GetCode(err) != appErr.EnvironmentUnavailable {
		t.Fatalf("expected EnvironmentUnavailable, got %v", err)
	}
}

func TestBuildInitRequestLimits(t *testing.T) {
	e := &processEngine{cfg: Config{PIDsLimit: 32}.withDefaults()}
	env := &Environment{WorkDir: "/w", Cmd: []string{"node"}, Limits: spec.ResourceLimit{MemoryBytes: 1 << 20}}
	req := e.buildInitRequest(env, "in", "out", "err")
	if req.RunSpec.Limits.PIDs != 0 {
		t.Fatalf("nproc limit must not be set without namespaces")
	}
	if req.RunSpec.Limits.OutputBytes != defaultOutputFileMaxBytes {
		t.Fatalf("unexpected output limit: %d", req.RunSpec.Limits.OutputBytes)
	}
	if !req.Isolation.DisableNetwork {
		t.Fatalf("network must be disabled")
	}
}

func TestCgroupHelpersOnPlainDir(t *testing.T) {
	root := t.TempDir()
	path, err := createRunCgroup(root, "abc")
	if err != nil {
		t.Fatalf("createRunCgroup failed: %v", err)
	}
	if err := applyCgroupLimits(path, spec.ResourceLimit{MemoryBytes: 1024}, 16); err != nil {
		t.Fatalf("applyCgroupLimits failed: %v", err)
	}
	if v, err := readCgroupInt(path, "pids.max"); err != nil || v != 16 {
		t.Fatalf("unexpected pids.max: %d %v", v, err)
	}
	if err := os.WriteFile(filepath.Join(path, "memory.events"), []byte("low 0\noom 1\noom_kill 1\n"), 0o644); err != nil {
		t.Fatalf("write events: %v", err)
	}
	if !wasOomKilled(path) {
		t.Fatalf("expected oom kill to be detected")
	}
}

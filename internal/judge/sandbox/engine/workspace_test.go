package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"codejudge/internal/judge/sandbox/spec"
)

func TestStageWorkspaceIsPrivate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	root := filepath.Join(t.TempDir(), "work")
	env, err := stageWorkspace(root, spec.EnvSpec{SourceFile: "solution.js", Source: "console.log(1)"})
	if err != nil {
		t.Fatalf("stageWorkspace failed: %v", err)
	}
	defer removeWorkspace(env)

	for path, want := range map[string]os.FileMode{root: 0o700, env.Dir: 0o700} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Fatalf("%s mode = %o, want %o", path, got, want)
		}
	}
	data, err := os.ReadFile(filepath.Join(env.WorkDir, "solution.js"))
	if err != nil || string(data) != "console.log(1)" {
		t.Fatalf("source not staged: %q %v", data, err)
	}
}

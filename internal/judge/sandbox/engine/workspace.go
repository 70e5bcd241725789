package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"codejudge/internal/judge/sandbox/spec"
	appErr "codejudge/pkg/errors"
)

const (
	boxDirName     = "box"
	stdinFileName  = "stdin"
	stdoutFileName = "stdout"
	stderrFileName = "stderr"
)

func validateEnvSpec(envSpec spec.EnvSpec) error {
	if envSpec.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if envSpec.SourceFile == "" {
		return appErr.ValidationError("source_file", "required")
	}
	if filepath.Base(envSpec.SourceFile) != envSpec.SourceFile {
		return appErr.ValidationError("source_file", "must be a plain file name")
	}
	if len(envSpec.Cmd) == 0 {
		return appErr.ValidationError("cmd", "required")
	}
	return nil
}

// stageWorkspace creates <root>/<id>/box and writes the source file into it.
// The caller owns the returned directory and must remove it.
func stageWorkspace(root string, envSpec spec.EnvSpec) (*Environment, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "codejudge")
	}
	id := uuid.NewString()
	dir := filepath.Join(root, id)
	box := filepath.Join(dir, boxDirName)
	// dir is private to the service uid. box stays traversable because the docker
	// backend bind-mounts it for a container user that may differ from ours.
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, appErr.Wrapf(err, appErr.EnvironmentUnavailable, "create work root failed")
	}
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, appErr.Wrapf(err, appErr.EnvironmentUnavailable, "create workspace failed")
	}
	if err := os.Mkdir(box, 0o755); err != nil {
		_ = os.RemoveAll(dir)
		return nil, appErr.Wrapf(err, appErr.EnvironmentUnavailable, "create workspace failed")
	}
	source := filepath.Join(box, envSpec.SourceFile)
	if err := os.WriteFile(source, []byte(envSpec.Source), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return nil, appErr.Wrapf(err, appErr.EnvironmentUnavailable, "stage source failed")
	}
	return &Environment{
		ID:           id,
		SubmissionID: envSpec.SubmissionID,
		CaseIndex:    envSpec.CaseIndex,
		Dir:          dir,
		WorkDir:      box,
		Cmd:          append([]string(nil), envSpec.Cmd...),
		Env:          append([]string(nil), envSpec.Env...),
		Image:        envSpec.Image,
		Limits:       envSpec.Limits,
	}, nil
}

func removeWorkspace(env *Environment) error {
	if env.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(env.Dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", env.Dir, err)
	}
	return nil
}

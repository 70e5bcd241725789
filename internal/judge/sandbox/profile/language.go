// Package profile defines language profiles used by the sandbox.
package profile

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// LanguageSpec defines how to stage and run a language.
type LanguageSpec struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Version          string   `yaml:"version"`
	SourceFile       string   `yaml:"source_file"`
	RunCmdTpl        string   `yaml:"run_cmd"`
	Image            string   `yaml:"image"`
	Env              []string `yaml:"env"`
	TimeMultiplier   float64  `yaml:"time_multiplier"`
	MemoryMultiplier float64  `yaml:"memory_multiplier"`
}

// DefaultLanguages returns the built-in language table.
func DefaultLanguages() []LanguageSpec {
	return []LanguageSpec{{
		ID:         "javascript",
		Name:       "JavaScript",
		Version:    "node",
		SourceFile: "solution.js",
		RunCmdTpl:  "node {src}",
		Image:      "code-runner-node",
		Env: []string{
			"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
			"HOME=/tmp",
		},
		TimeMultiplier:   1,
		MemoryMultiplier: 1,
	}}
}

// BuildCommand expands the run template into an argv.
// {src} is replaced by the staged source file name.
func (l LanguageSpec) BuildCommand() ([]string, error) {
	if l.RunCmdTpl == "" {
		return nil, fmt.Errorf("run command template is empty for %s", l.ID)
	}
	expanded := strings.NewReplacer("{src}", l.SourceFile).Replace(l.RunCmdTpl)
	args, err := shlex.Split(expanded)
	if err != nil {
		return nil, fmt.Errorf("parse run command for %s: %w", l.ID, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("run command is empty for %s", l.ID)
	}
	return args, nil
}

// ScaleTime applies the language time multiplier to a base limit in milliseconds.
func (l LanguageSpec) ScaleTime(ms int64) int64 {
	return scale(ms, l.TimeMultiplier)
}

// ScaleMemory applies the language memory multiplier to a base limit in bytes.
func (l LanguageSpec) ScaleMemory(bytes int64) int64 {
	return scale(bytes, l.MemoryMultiplier)
}

// scale never turns a positive limit into zero, which the engines read as "unlimited".
func scale(v int64, m float64) int64 {
	if v <= 0 || m <= 0 {
		return v
	}
	return max(int64(float64(v)*m), 1)
}

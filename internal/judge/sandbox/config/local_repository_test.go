package config

import (
	"context"
	"testing"

	"codejudge/internal/judge/sandbox/profile"
	appErr "codejudge/pkg/errors"
)

func TestLocalRepository(t *testing.T) {
	repo := NewLocalRepository(append(profile.DefaultLanguages(),
		profile.LanguageSpec{ID: "python", SourceFile: "main.py", RunCmdTpl: "python3 {src}"},
		profile.LanguageSpec{},
	))

	lang, err := repo.GetLanguageSpec(context.Background(), "javascript")
	if err != nil {
		t.Fatalf("GetLanguageSpec failed: %v", err)
	}
	if lang.SourceFile != "solution.js" {
		t.Fatalf("unexpected source file: %s", lang.SourceFile)
	}

	if ids := repo.Languages(); len(ids) != 2 || ids[0] != "javascript" || ids[1] != "python" {
		t.Fatalf("unexpected languages: %v", ids)
	}
}

func TestLocalRepositoryUnknownLanguage(t *testing.T) {
	repo := NewLocalRepository(profile.DefaultLanguages())
	_, err := repo.GetLanguageSpec(context.Background(), "brainfuck")
	if appErr.GetCode(err) != appErr.LanguageNotSupported {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
	_, err = repo.GetLanguageSpec(context.Background(), "")
	if appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

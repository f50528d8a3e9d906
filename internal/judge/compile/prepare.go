package compile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"cpjudge/internal/judge/model"
	"cpjudge/internal/judge/sandbox"
	appErr "cpjudge/pkg/errors"
	"cpjudge/pkg/logger"

	"go.uber.org/zap"
)

// Preparer stages submissions into a sandbox box.
type Preparer struct {
	driver sandbox.Driver
	langs  *Registry
	runDir string
}

// NewPreparer creates a preparer that writes build artifacts under runDir.
func NewPreparer(driver sandbox.Driver, langs *Registry, runDir string) *Preparer {
	return &Preparer{driver: driver, langs: langs, runDir: runDir}
}

// Prepare writes the source, compiles it if the language requires, stages
// the artifact into the box directory and returns the argv to run it with.
//
// When cleanup is true the box is cleaned and re-initialized first; the
// grader of a task is prepared with cleanup=false so it does not clobber
// the submission's staged executable. Callers must keep base names
// distinct for the two.
//
// A compiler failure is returned as a CompilationError-coded error.
func (p *Preparer) Prepare(ctx context.Context, lang model.Language, boxID int, baseName, code string, cleanup bool) ([]string, error) {
	spec, err := p.langs.Spec(lang)
	if err != nil {
		return nil, err
	}

	boxDir := p.driver.BoxDir(boxID)
	if cleanup {
		if err := p.driver.Cleanup(ctx, boxID); err != nil {
			return nil, err
		}
		boxDir, err = p.driver.Init(ctx, boxID)
		if err != nil {
			return nil, err
		}
	}

	codeFileName := fmt.Sprintf("%s.%s", baseName, spec.Extension)
	codePath := filepath.Join(p.runDir, codeFileName)
	exePath := filepath.Join(p.runDir, baseName)
	if err := os.WriteFile(codePath, []byte(code), 0644); err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalError, "write source file failed")
	}

	if spec.Compiled() {
		if err := p.compile(ctx, spec, codePath, exePath); err != nil {
			return nil, err
		}
		if err := copyFile(exePath, filepath.Join(boxDir, baseName), 0755); err != nil {
			return nil, appErr.Wrapf(err, appErr.InternalError, "stage executable failed")
		}
	} else {
		if err := copyFile(codePath, filepath.Join(boxDir, codeFileName), 0644); err != nil {
			return nil, appErr.Wrapf(err, appErr.InternalError, "stage source failed")
		}
	}

	return spec.runArgv(codeFileName, baseName), nil
}

func (p *Preparer) compile(ctx context.Context, spec LanguageSpec, codePath, exePath string) error {
	argv, err := spec.compileArgv(codePath, exePath)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Debug(ctx, "compiler rejected source",
				zap.Strings("argv", argv),
				zap.String("stderr", stderr.String()),
			)
			return appErr.Wrapf(err, appErr.CompilationError, "compiler exited with code %d", exitErr.ExitCode())
		}
		return appErr.Wrapf(err, appErr.InternalError, "start compiler failed")
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	appErr "cpjudge/pkg/errors"
	"cpjudge/pkg/logger"

	"go.uber.org/zap"
)

const (
	defaultBinary  = "isolate"
	defaultBoxRoot = "/var/local/lib/isolate"

	// wallClockLimitSeconds is the fixed wall-clock ceiling applied on top
	// of the CPU time limit so that sleeping programs still get killed.
	wallClockLimitSeconds = 20
)

// IsolateDriver drives the isolate command-line tool.
type IsolateDriver struct {
	binary  string
	boxRoot string
}

// Option configures an IsolateDriver.
type Option func(*IsolateDriver)

// WithBinary overrides the isolate binary path.
func WithBinary(path string) Option {
	return func(d *IsolateDriver) { d.binary = path }
}

// WithBoxRoot overrides the box root used when isolate does not print one.
func WithBoxRoot(path string) Option {
	return func(d *IsolateDriver) { d.boxRoot = path }
}

// NewIsolateDriver creates a driver for the isolate binary.
func NewIsolateDriver(opts ...Option) *IsolateDriver {
	d := &IsolateDriver{binary: defaultBinary, boxRoot: defaultBoxRoot}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init initializes the box and returns its box directory.
func (d *IsolateDriver) Init(ctx context.Context, boxID int) (string, error) {
	cmd := exec.CommandContext(ctx, d.binary, "-b", strconv.Itoa(boxID), "--silent", "--init")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxInitFailed, "isolate init failed for box %d", boxID)
	}
	root := strings.TrimSpace(stdout.String())
	if root == "" {
		root = filepath.Join(d.boxRoot, strconv.Itoa(boxID))
	}
	return filepath.Join(root, "box"), nil
}

// BoxDir returns the box directory for boxID without touching the box.
func (d *IsolateDriver) BoxDir(boxID int) string {
	return filepath.Join(d.boxRoot, strconv.Itoa(boxID), "box")
}

// Cleanup releases the box. Redundant cleanups are fine.
func (d *IsolateDriver) Cleanup(ctx context.Context, boxID int) error {
	cmd := exec.CommandContext(ctx, d.binary, "-b", strconv.Itoa(boxID), "--silent", "--cleanup")
	if err := cmd.Run(); err != nil {
		return appErr.Wrapf(err, appErr.SandboxCleanupError, "isolate cleanup failed for box %d", boxID)
	}
	return nil
}

// Run executes the program described by spec inside the box. A non-zero
// exit of the sandboxed program is not an error; the caller classifies it
// from the metadata file.
func (d *IsolateDriver) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	if len(spec.Argv) == 0 {
		return RunResult{}, appErr.New(appErr.InvalidParams).WithMessage("run argv is required")
	}

	args := make([]string, 0, 16)
	if spec.MetadataPath != "" {
		args = append(args, "-M", spec.MetadataPath)
	}
	args = append(args, "-b", strconv.Itoa(spec.BoxID))
	if spec.TimeLimit > 0 {
		args = append(args,
			"-t", strconv.FormatFloat(spec.TimeLimit, 'f', -1, 64),
			"-w", strconv.Itoa(wallClockLimitSeconds),
		)
	}
	if spec.MemoryLimitMB > 0 {
		args = append(args, "-m", strconv.Itoa(spec.MemoryLimitMB*1024)) // in kB
	}
	args = append(args, "--stderr-to-stdout", "--silent", "--run", "--")
	args = append(args, spec.Argv...)

	logger.Debug(ctx, "isolate run", zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, d.binary, args...)
	cmd.Stdin = strings.NewReader(spec.Stdin)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	res := RunResult{Stdout: stdout.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return RunResult{}, appErr.Wrapf(err, appErr.SandboxRunFailed, "isolate run failed for box %d", spec.BoxID)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

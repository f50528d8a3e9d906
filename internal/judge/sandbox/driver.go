// Package sandbox wraps the external isolate tool that executes untrusted
// programs inside a resource-limited box.
package sandbox

import "context"

// RunSpec describes one sandboxed execution.
type RunSpec struct {
	// Argv is the command executed inside the box, relative to the box
	// directory for staged executables.
	Argv []string
	// BoxID selects the sandbox instance. Each judge worker owns exactly
	// one box id; two workers must never share one.
	BoxID int
	// Stdin is fed to the program.
	Stdin string
	// MetadataPath, when set, receives the line-oriented key:value
	// metadata file written by the sandbox after the run.
	MetadataPath string
	// TimeLimit is the CPU time limit in seconds. Zero means unlimited.
	TimeLimit float64
	// MemoryLimitMB is the memory limit in megabytes. Zero means unlimited.
	MemoryLimitMB int
}

// RunResult carries the completed process output. Stderr is merged into
// Stdout by the sandbox.
type RunResult struct {
	Stdout   string
	ExitCode int
}

// Driver is the sandbox lifecycle interface consumed by the compile and
// pipeline layers.
type Driver interface {
	// Init prepares the box and returns the path of its box directory.
	Init(ctx context.Context, boxID int) (string, error)
	// Cleanup releases the box. Safe to call redundantly.
	Cleanup(ctx context.Context, boxID int) error
	// BoxDir returns the box directory of an already initialized box.
	BoxDir(boxID int) string
	// Run executes one program inside the box.
	Run(ctx context.Context, spec RunSpec) (RunResult, error)
}

package testcase

import (
	"fmt"
	"os"
	"path/filepath"

	"cpjudge/internal/judge/model"
	appErr "cpjudge/pkg/errors"
)

// DirIterator walks a per-task directory of i.j.in / i.j.out files.
// Subtasks and cases are numbered from 1. A subtask ends at the first
// missing i.j.in; the whole iteration ends when i.1.in is missing. When
// the task has no grader, i.j.out must accompany i.j.in.
type DirIterator struct {
	dir       string
	hasGrader bool
	subtask   int
	caseNo    int
	done      bool
}

// OpenDir creates an iterator over the task's directory layout.
func OpenDir(dir string, info model.TaskInfo) (*DirIterator, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.TestDataError, "task data dir %q not readable", dir)
	}
	if !st.IsDir() {
		return nil, appErr.Newf(appErr.TestDataError, "task data path %q is not a directory", dir)
	}
	return &DirIterator{dir: dir, hasGrader: info.Grader, subtask: 1, caseNo: 1}, nil
}

// Next reads the next case's files. File contents are loaded per case so
// that large test data is never held all at once.
func (it *DirIterator) Next() (model.TestCase, bool, error) {
	for !it.done {
		inPath := filepath.Join(it.dir, fmt.Sprintf("%d.%d.in", it.subtask, it.caseNo))
		if !fileExists(inPath) {
			it.advanceSubtask()
			continue
		}

		outPath := ""
		if !it.hasGrader {
			outPath = filepath.Join(it.dir, fmt.Sprintf("%d.%d.out", it.subtask, it.caseNo))
			if !fileExists(outPath) {
				it.advanceSubtask()
				continue
			}
		}

		input, err := os.ReadFile(inPath)
		if err != nil {
			return model.TestCase{}, false, appErr.Wrapf(err, appErr.TestDataError, "read %s failed", inPath)
		}
		tc := model.TestCase{
			Subtask:  it.subtask,
			TestCase: it.caseNo,
			Input:    string(input),
		}
		if outPath != "" {
			output, err := os.ReadFile(outPath)
			if err != nil {
				return model.TestCase{}, false, appErr.Wrapf(err, appErr.TestDataError, "read %s failed", outPath)
			}
			tc.Output = string(output)
		}
		it.caseNo++
		return tc, true, nil
	}
	return model.TestCase{}, false, nil
}

// advanceSubtask moves to the next subtask, or ends the iteration when the
// current subtask had no first case.
func (it *DirIterator) advanceSubtask() {
	if it.caseNo == 1 {
		it.done = true
		return
	}
	it.subtask++
	it.caseNo = 1
}

// Close is a no-op; the iterator holds no open files between calls.
func (it *DirIterator) Close() error { return nil }

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// Package testcase enumerates the test cases of a staged task, one case in
// memory at a time. Two layouts are supported: a per-task directory of
// i.j.in / i.j.out files, and a single JSON snapshot streamed from the
// task-info cache.
package testcase

import "cpjudge/internal/judge/model"

// Iterator yields test cases in strict (subtask, test_case) order.
type Iterator interface {
	// Next returns the next test case. ok is false when the iteration is
	// exhausted.
	Next() (tc model.TestCase, ok bool, err error)
	Close() error
}

// Open selects the source for a judge request: the staged JSON snapshot
// when the request carries one, the directory layout otherwise.
func Open(info model.TaskInfo, snapshotPath, testCasesDir string) (Iterator, error) {
	if snapshotPath != "" {
		return OpenSnapshot(snapshotPath)
	}
	return OpenDir(testCasesDir, info)
}

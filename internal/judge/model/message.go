package model

import "strings"

// ValidTaskID reports whether id is usable as a single path component.
// Task ids name files under the snapshot cache and the test-case tree,
// so separators and dot navigation are rejected.
func ValidTaskID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

// Submission is one user submission to judge.
type Submission struct {
	ID               int64    `json:"id"`
	Language         Language `json:"language"`
	SourceCode       string   `json:"source_code"`
	InOngoingContest bool     `json:"in_ongoing_contest"`
}

// TaskInfo describes the task a submission targets. Immutable per snapshot.
type TaskInfo struct {
	TaskID      string  `json:"task_id"`
	TimeLimit   float64 `json:"time_limit"`   // seconds
	MemoryLimit int     `json:"memory_limit"` // megabytes
	Grader      bool    `json:"grader"`

	GraderSourceCode string   `json:"grader_source_code,omitempty"`
	GraderLanguage   Language `json:"grader_language,omitempty"`
}

// JudgeRequest bundles a task with a submission. SnapshotPath names the
// staged test-data snapshot the judge must read; it is filled in by the
// task-info cache before the request reaches the judge queue.
type JudgeRequest struct {
	TaskInfo   TaskInfo   `json:"task_info"`
	Submission Submission `json:"submission"`

	SnapshotPath string `json:"snapshot_path,omitempty"`
}

// TestCase is one test case of a task. Output is empty iff the task uses
// a grader.
type TestCase struct {
	Subtask  int    `json:"subtask"`
	TestCase int    `json:"test_case"`
	Input    string `json:"input"`
	Output   string `json:"output,omitempty"`
}

// TestCaseResult is the graded outcome of one test case.
type TestCaseResult struct {
	Subtask    int     `json:"subtask"`
	TestCase   int     `json:"test_case"`
	Verdict    Verdict `json:"verdict"`
	Score      float64 `json:"score"`
	TimeUsed   float64 `json:"time_used"`   // seconds, clipped to the time limit
	MemoryUsed float64 `json:"memory_used"` // megabytes
}

// Report is the terminal payload POSTed to the frontend. Exactly one of
// Verdict or TestCaseResults is set: a single verdict when the pipeline
// aborted the submission (CE, SE), the per-case array otherwise.
type Report struct {
	Verdict         Verdict          `json:"verdict,omitempty"`
	TestCaseResults []TestCaseResult `json:"test_case_results,omitempty"`
}

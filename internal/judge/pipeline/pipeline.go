// Package pipeline runs one submission end to end: stage and compile,
// execute every test case in the sandbox, grade the outputs and produce
// the report for the frontend.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"cpjudge/internal/judge/model"
	"cpjudge/internal/judge/sandbox"
	"cpjudge/internal/judge/testcase"
	appErr "cpjudge/pkg/errors"
	"cpjudge/pkg/logger"

	"go.uber.org/zap"
)

// Preparer stages a program into a box and returns its run argv.
type Preparer interface {
	Prepare(ctx context.Context, lang model.Language, boxID int, baseName, code string, cleanup bool) ([]string, error)
}

// Pipeline judges submissions. One Pipeline is shared by all workers; per
// submission state lives on the stack and in the worker's own box.
type Pipeline struct {
	driver       sandbox.Driver
	prep         Preparer
	runDir       string
	testCasesDir string

	// openIterator is swappable in tests.
	openIterator func(info model.TaskInfo, snapshotPath, testCasesDir string) (testcase.Iterator, error)
}

// New creates a judge pipeline.
func New(driver sandbox.Driver, prep Preparer, runDir, testCasesDir string) *Pipeline {
	return &Pipeline{
		driver:       driver,
		prep:         prep,
		runDir:       runDir,
		testCasesDir: testCasesDir,
		openIterator: testcase.Open,
	}
}

// Judge runs one submission inside the given box and returns the report.
// Failures of the judge machinery itself never escape as errors; they
// surface as a system-error verdict so the submission still gets reported.
// The box is cleaned up on every exit, abort paths included, so the next
// submission on this box always starts from a released box.
func (p *Pipeline) Judge(ctx context.Context, boxID int, req model.JudgeRequest) model.Report {
	report, err := p.judge(ctx, boxID, req)
	if cleanupErr := p.driver.Cleanup(ctx, boxID); cleanupErr != nil {
		logger.Error(ctx, "sandbox cleanup failed",
			zap.Int("box_id", boxID),
			zap.Int64("submission_id", req.Submission.ID),
			zap.Error(cleanupErr),
		)
		return model.Report{Verdict: model.VerdictSE}
	}
	if err != nil {
		logger.Error(ctx, "judging aborted",
			zap.Int64("submission_id", req.Submission.ID),
			zap.String("task_id", req.TaskInfo.TaskID),
			zap.Error(err),
		)
		if appErr.Is(err, appErr.CompilationError) {
			return model.Report{Verdict: model.VerdictCE}
		}
		return model.Report{Verdict: model.VerdictSE}
	}
	return report
}

func (p *Pipeline) judge(ctx context.Context, boxID int, req model.JudgeRequest) (model.Report, error) {
	info := req.TaskInfo
	sub := req.Submission

	// The staged snapshot is authoritative: the task may have been edited
	// between submission and the refresh that released it.
	if req.SnapshotPath != "" {
		snapInfo, err := testcase.ReadTaskInfo(req.SnapshotPath)
		if err != nil {
			return model.Report{}, err
		}
		info = snapInfo
	} else if !model.ValidTaskID(info.TaskID) {
		// Directory-layout reads join the id onto the test-case tree.
		return model.Report{}, appErr.Newf(appErr.InvalidParams, "unsafe task id %q", info.TaskID)
	}

	codeArgv, err := p.prep.Prepare(ctx, sub.Language, boxID, fmt.Sprintf("code%d", boxID), sub.SourceCode, true)
	if err != nil {
		return model.Report{}, err
	}

	var graderArgv []string
	if info.Grader {
		// The grader shares the box with the submission, so it must not
		// re-initialize it and must use a distinct base name.
		graderArgv, err = p.prep.Prepare(ctx, info.GraderLanguage, boxID, fmt.Sprintf("grader%d", boxID), info.GraderSourceCode, false)
		if err != nil {
			return model.Report{}, appErr.Wrap(err, appErr.GraderError)
		}
	}

	iter, err := p.openIterator(info, req.SnapshotPath, p.taskDir(info.TaskID))
	if err != nil {
		return model.Report{}, err
	}
	defer iter.Close()

	metadataPath := filepath.Join(p.runDir, fmt.Sprintf("metadata%d.txt", boxID))

	var results []model.TestCaseResult
	// failedSubtask short-circuits the rest of a subtask once one of its
	// cases is anything other than accepted, but only while the contest
	// is running. A partial score counts as not accepted.
	failedSubtask := 0
	for {
		tc, ok, err := iter.Next()
		if err != nil {
			return model.Report{}, err
		}
		if !ok {
			break
		}

		if sub.InOngoingContest && tc.Subtask == failedSubtask {
			results = append(results, model.TestCaseResult{
				Subtask:  tc.Subtask,
				TestCase: tc.TestCase,
				Verdict:  model.VerdictSK,
			})
			continue
		}

		result, err := p.runCase(ctx, boxID, info, tc, codeArgv, graderArgv, metadataPath)
		if err != nil {
			return model.Report{}, err
		}
		results = append(results, result)
		if result.Verdict != model.VerdictAC {
			failedSubtask = tc.Subtask
		}
	}

	return model.Report{TestCaseResults: results}, nil
}

// runCase executes and grades one test case. Only sandbox faults return an
// error; a failing program is a result, not an error.
func (p *Pipeline) runCase(ctx context.Context, boxID int, info model.TaskInfo, tc model.TestCase, codeArgv, graderArgv []string, metadataPath string) (model.TestCaseResult, error) {
	result := model.TestCaseResult{Subtask: tc.Subtask, TestCase: tc.TestCase}

	input := tc.Input
	if !strings.HasSuffix(input, "\n") {
		input += "\n"
	}

	run, err := p.driver.Run(ctx, sandbox.RunSpec{
		Argv:          codeArgv,
		BoxID:         boxID,
		Stdin:         input,
		MetadataPath:  metadataPath,
		TimeLimit:     info.TimeLimit,
		MemoryLimitMB: info.MemoryLimit,
	})
	if err != nil {
		return result, err
	}

	meta, err := sandbox.ParseMetadataFile(metadataPath)
	if err != nil {
		return result, err
	}
	if t, ok := meta.Time(); ok {
		result.TimeUsed = t
		if info.TimeLimit > 0 && result.TimeUsed > info.TimeLimit {
			result.TimeUsed = info.TimeLimit
		}
	}
	if rss, ok := meta.MaxRSSKB(); ok {
		result.MemoryUsed = float64(rss) / 1024
	}

	verdict := meta.Classify()
	switch verdict {
	case model.VerdictSE:
		return result, appErr.Newf(appErr.SandboxRunFailed, "sandbox reported abnormal status for case %d.%d", tc.Subtask, tc.TestCase)
	case model.VerdictRE, model.VerdictTLE:
		result.Verdict = verdict
		return result, nil
	}

	if len(graderArgv) > 0 {
		return p.gradeWithGrader(ctx, boxID, info, tc, graderArgv, metadataPath, run.Stdout, result)
	}
	result.Verdict, result.Score = gradeExact(run.Stdout, tc.Output)
	return result, nil
}

// gradeWithGrader feeds the case input and the contestant's output to the
// task's grader and trusts its verdict line.
func (p *Pipeline) gradeWithGrader(ctx context.Context, boxID int, info model.TaskInfo, tc model.TestCase, graderArgv []string, metadataPath, output string, result model.TestCaseResult) (model.TestCaseResult, error) {
	run, err := p.driver.Run(ctx, sandbox.RunSpec{
		Argv:          graderArgv,
		BoxID:         boxID,
		Stdin:         graderStdin(tc.Input, output),
		MetadataPath:  metadataPath,
		TimeLimit:     info.TimeLimit,
		MemoryLimitMB: info.MemoryLimit,
	})
	if err != nil {
		return result, appErr.Wrap(err, appErr.GraderError)
	}
	meta, err := sandbox.ParseMetadataFile(metadataPath)
	if err != nil {
		return result, err
	}
	if meta.Classify() != model.VerdictAC {
		return result, appErr.Newf(appErr.GraderError, "grader did not run to completion for case %d.%d", tc.Subtask, tc.TestCase)
	}

	verdict, score, ok := parseGraderOutput(run.Stdout)
	if !ok {
		return result, appErr.Newf(appErr.GraderError, "unintelligible grader output for case %d.%d", tc.Subtask, tc.TestCase)
	}
	result.Verdict = verdict
	result.Score = score
	return result, nil
}

func (p *Pipeline) taskDir(taskID string) string {
	return filepath.Join(p.testCasesDir, taskID)
}

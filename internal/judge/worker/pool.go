// Package worker runs the pool of judge workers that consume the judge
// queue and drive the pipeline.
package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"cpjudge/internal/judge/model"
	"cpjudge/internal/judge/queue"
	"cpjudge/internal/metrics"
	"cpjudge/pkg/logger"

	"go.uber.org/zap"
)

// Judger runs one submission inside a box.
type Judger interface {
	Judge(ctx context.Context, boxID int, req model.JudgeRequest) model.Report
}

// Reporter delivers the terminal verdict of a submission.
type Reporter interface {
	Report(ctx context.Context, submissionID int64, report model.Report) error
}

const dequeueTimeout = time.Second

// Pool owns N workers. Worker i holds sandbox box i for its whole
// lifetime, so concurrent judges never collide inside the sandbox.
type Pool struct {
	queue    queue.Queue
	judger   Judger
	reporter Reporter
	metrics  *metrics.Metrics
	count    int
	debug    bool

	drainCh chan struct{}
}

// New creates a worker pool. In debug mode verdicts are logged instead of
// reported to the frontend.
func New(q queue.Queue, judger Judger, reporter Reporter, m *metrics.Metrics, count int, debug bool) *Pool {
	if count <= 0 {
		count = 1
	}
	return &Pool{
		queue:    q,
		judger:   judger,
		reporter: reporter,
		metrics:  m,
		count:    count,
		debug:    debug,
		drainCh:  make(chan struct{}),
	}
}

// BeginDrain tells the workers to exit once the queue runs dry. Requests
// already queued are still judged and reported.
func (p *Pool) BeginDrain() {
	select {
	case <-p.drainCh:
	default:
		close(p.drainCh)
	}
}

// Run blocks until all workers exit, either by drain or by context
// cancellation.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.count; i++ {
		boxID := i
		g.Go(func() error {
			return p.runWorker(ctx, boxID)
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, boxID int) error {
	logger.Info(ctx, "judge worker started", zap.Int("box_id", boxID))
	for {
		req, ok, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error(ctx, "dequeue failed", zap.Int("box_id", boxID), zap.Error(err))
			continue
		}
		if !ok {
			select {
			case <-p.drainCh:
				logger.Info(ctx, "judge worker drained", zap.Int("box_id", boxID))
				return nil
			default:
				continue
			}
		}
		p.handle(ctx, boxID, req)
	}
}

// handle judges one request and reports the result. A panic anywhere in
// the pipeline is converted into a system-error verdict; one poisoned
// submission must not take the worker down.
func (p *Pool) handle(ctx context.Context, boxID int, req model.JudgeRequest) {
	ctx = logger.WithTraceID(ctx, fmt.Sprintf("sub-%d", req.Submission.ID))
	logger.Info(ctx, "judging submission",
		zap.Int("box_id", boxID),
		zap.Int64("submission_id", req.Submission.ID),
		zap.String("task_id", req.TaskInfo.TaskID),
	)

	start := time.Now()
	report := p.safeJudge(ctx, boxID, req)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.JudgeDuration.Observe(elapsed.Seconds())
		p.metrics.SubmissionsJudged.WithLabelValues(string(summaryVerdict(report))).Inc()
	}
	logger.Info(ctx, "submission judged",
		zap.Int64("submission_id", req.Submission.ID),
		zap.String("verdict", string(summaryVerdict(report))),
		zap.Duration("elapsed", elapsed),
	)

	if p.debug {
		logger.Info(ctx, "debug mode, skipping report",
			zap.Int64("submission_id", req.Submission.ID),
			zap.Any("report", report),
		)
		return
	}
	if err := p.reporter.Report(ctx, req.Submission.ID, report); err != nil {
		if p.metrics != nil {
			p.metrics.ReportsDelivered.WithLabelValues(metrics.OutcomeError).Inc()
		}
		logger.Error(ctx, "report delivery failed",
			zap.Int64("submission_id", req.Submission.ID), zap.Error(err))
		return
	}
	if p.metrics != nil {
		p.metrics.ReportsDelivered.WithLabelValues(metrics.OutcomeOK).Inc()
	}
}

func (p *Pool) safeJudge(ctx context.Context, boxID int, req model.JudgeRequest) (report model.Report) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "judge panicked",
				zap.Int64("submission_id", req.Submission.ID),
				zap.Any("panic", r),
			)
			report = model.Report{Verdict: model.VerdictSE}
		}
	}()
	return p.judger.Judge(ctx, boxID, req)
}

// summaryVerdict collapses a report into a single verdict: the abort
// verdict when the pipeline stopped early, otherwise the first non-passing
// case verdict, otherwise accepted.
func summaryVerdict(report model.Report) model.Verdict {
	if report.Verdict != "" {
		return report.Verdict
	}
	for _, r := range report.TestCaseResults {
		if r.Verdict != model.VerdictAC {
			return r.Verdict
		}
	}
	return model.VerdictAC
}

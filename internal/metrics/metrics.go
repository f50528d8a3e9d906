// Package metrics exposes the worker's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors. One instance is shared by the intake,
// the cache and the workers.
type Metrics struct {
	Registry *prometheus.Registry

	SubmissionsJudged *prometheus.CounterVec
	JudgeDuration     prometheus.Histogram
	CacheRefreshes    *prometheus.CounterVec
	ReportsDelivered  *prometheus.CounterVec
	QueueDepth        prometheus.GaugeFunc
}

// QueueLenFunc reports the current judge queue depth.
type QueueLenFunc func() float64

// New creates and registers all collectors on a fresh registry.
func New(queueLen QueueLenFunc) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		SubmissionsJudged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpjudge",
			Name:      "submissions_judged_total",
			Help:      "Submissions judged, labelled by final verdict.",
		}, []string{"verdict"}),
		JudgeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cpjudge",
			Name:      "judge_duration_seconds",
			Help:      "Wall time spent judging one submission.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		CacheRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpjudge",
			Name:      "task_info_refreshes_total",
			Help:      "Task info snapshot refreshes, labelled by outcome.",
		}, []string{"outcome"}),
		ReportsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpjudge",
			Name:      "reports_delivered_total",
			Help:      "Verdict reports sent to the frontend, labelled by outcome.",
		}, []string{"outcome"}),
	}
	if queueLen != nil {
		m.QueueDepth = factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "cpjudge",
			Name:      "judge_queue_depth",
			Help:      "Requests waiting on the judge queue.",
		}, queueLen)
	}
	return m
}

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

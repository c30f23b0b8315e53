// Package metrics holds the Prometheus collectors for the submission and
// violation paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes.
const (
	OutcomeGraded         = "graded"
	OutcomeDuplicate      = "duplicate"
	OutcomeExamNotFound   = "exam_not_found"
	OutcomeGradingFailure = "grading_failure"
	OutcomePersistFailure = "persistence_failure"
)

// Metrics bundles the collectors. A nil *Metrics records nothing.
type Metrics struct {
	submissions     *prometheus.CounterVec
	gradingDuration prometheus.Histogram
	violations      *prometheus.CounterVec
	queueDepth      prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exstem",
			Name:      "submissions_total",
			Help:      "Exam submissions by outcome.",
		}, []string{"outcome"}),
		gradingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "exstem",
			Name:      "grading_duration_seconds",
			Help:      "Time spent grading and persisting one submission.",
			Buckets:   prometheus.DefBuckets,
		}),
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exstem",
			Name:      "violations_total",
			Help:      "Reported proctoring violations by kind.",
		}, []string{"kind"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "exstem",
			Name:      "violation_queue_depth",
			Help:      "Violation events waiting to be persisted, sampled per batch.",
		}),
	}
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GradingDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.gradingDuration.Observe(d.Seconds())
}

func (m *Metrics) Violation(kind string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(kind).Inc()
}

func (m *Metrics) QueueDepth(n int64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Submission(OutcomeGraded)
	m.Submission(OutcomeGraded)
	m.Submission(OutcomeDuplicate)
	m.Violation("focus_lost")
	m.GradingDuration(20 * time.Millisecond)
	m.QueueDepth(12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues(OutcomeGraded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues(OutcomeDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.violations.WithLabelValues("focus_lost")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1, testutil.CollectAndCount(m.gradingDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Submission(OutcomeGraded)
		m.Violation("clipboard")
		m.GradingDuration(time.Second)
		m.QueueDepth(1)
	})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestMetricsRegistered(t *testing.T) {
	tests := []struct {
		name   string
		metric prometheus.Collector
	}{
		{"DispatchAttemptsTotal", DispatchAttemptsTotal},
		{"DispatchDuration", DispatchDuration},
		{"JobsScheduledTotal", JobsScheduledTotal},
		{"WorkerJobsProcessedTotal", WorkerJobsProcessedTotal},
		{"WorkerPollErrorsTotal", WorkerPollErrorsTotal},
		{"WorkerAckErrorsTotal", WorkerAckErrorsTotal},
		{"WorkerJobLag", WorkerJobLag},
		{"HistoryRecordErrorsTotal", HistoryRecordErrorsTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.metric)
		})
	}
}

func TestDispatchAttemptsCounter(t *testing.T) {
	before := testutil.ToFloat64(DispatchAttemptsTotal.WithLabelValues("email", ResultSuccess))
	DispatchAttemptsTotal.WithLabelValues("email", ResultSuccess).Inc()
	after := testutil.ToFloat64(DispatchAttemptsTotal.WithLabelValues("email", ResultSuccess))
	assert.Equal(t, before+1, after)
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, Result(true))
	assert.Equal(t, ResultFailure, Result(false))
}

// Package metrics holds the Prometheus collectors shared by the API and the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultPoison   = "poison"
	ResultReleased = "released"
)

// Dispatch metrics
var (
	DispatchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Total number of dispatch attempts",
		},
		[]string{"channel", "result"}, // success, failure
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Duration of channel sends",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
)

// Scheduler metrics
var (
	JobsScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_scheduled_total",
			Help: "Total number of jobs handed to the broker",
		},
		[]string{"result"}, // success, failure
	)
)

// Worker metrics
var (
	WorkerJobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Total number of jobs processed by the worker",
		},
		[]string{"result"}, // success, failure, poison
	)

	WorkerPollErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_poll_errors_total",
			Help: "Total number of failed broker polls",
		},
	)

	WorkerAckErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_ack_errors_total",
			Help: "Total number of failed acknowledgements",
		},
	)

	WorkerJobLag = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_job_lag_seconds",
			Help:    "Delay between a job's eligible time and the start of its execution",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
	)
)

// History metrics
var (
	HistoryRecordErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "history_record_errors_total",
			Help: "Total number of outcomes that could not be recorded",
		},
	)
)

// Result maps a success flag to its label value.
func Result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

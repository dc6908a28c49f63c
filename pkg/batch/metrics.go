package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_batch_requests_total",
		Help: "Total physical batch requests sent by status",
	}, []string{"status"})

	batchStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphcore_batch_steps_total",
		Help: "Total steps sent inside batch requests",
	})

	batchStepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_batch_step_failures_total",
		Help: "Total non-2xx step responses by status",
	}, []string{"status"})
)

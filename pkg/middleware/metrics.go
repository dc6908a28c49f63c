package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for pipeline stages.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_retries_total",
		Help: "Total number of retry attempts by response status",
	}, []string{"status"})

	retryDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "graphcore_retry_delay_seconds",
		Help:    "Delay applied before each retry attempt",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 180},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphcore_retry_exhausted_total",
		Help: "Total number of requests that exhausted their retry budget",
	})

	redirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_redirects_total",
		Help: "Total number of redirects followed by status",
	}, []string{"status"})

	authChallengesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_auth_challenges_total",
		Help: "Total number of 401 responses answered with a re-authenticated retry",
	}, []string{"claims"})

	chaosInjectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_chaos_injections_total",
		Help: "Total number of responses substituted by the chaos stage",
	}, []string{"status"})

	decompressedResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphcore_decompressed_responses_total",
		Help: "Total number of gzip responses decoded by the compression stage",
	})
)

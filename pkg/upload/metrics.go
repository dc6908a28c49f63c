package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	slicesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_upload_slices_total",
		Help: "Total uploaded slices by outcome",
	}, []string{"outcome"}) // "completed", "no_item", "retryable", "fatal"

	bytesUploadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphcore_upload_bytes_total",
		Help: "Total bytes sent in upload slices",
	})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_uploads_total",
		Help: "Total finished uploads by result",
	}, []string{"result"}) // "completed", "canceled", "failed"
)

package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreHits tracks successful reads by namespace
	StoreHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcore_store_hits_total",
			Help: "Total number of state store hits",
		},
		[]string{"namespace"},
	)

	// StoreMisses tracks reads of missing or expired keys
	StoreMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcore_store_misses_total",
			Help: "Total number of state store misses",
		},
		[]string{"namespace"},
	)

	// StoreErrors tracks store operation errors
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcore_store_errors_total",
			Help: "Total number of state store operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)

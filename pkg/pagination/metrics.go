package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_pages_fetched_total",
		Help: "Total number of collection pages fetched by kind (next, delta)",
	}, []string{"kind"})

	itemsIteratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphcore_page_items_total",
		Help: "Total number of items handed to iterator callbacks",
	})
)

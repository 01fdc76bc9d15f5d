package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adserver_pages_fetched_total",
		Help: "Total number of result pages fetched by statement",
	})

	recordsEnumerated = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adserver_enumeration_records",
		Help:    "Number of records observed per completed enumeration",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	totalDriftTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adserver_total_drift_total",
		Help: "Total result set size changes detected during enumeration by policy",
	}, []string{"policy"})

	bulkActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adserver_bulk_actions_total",
		Help: "Bulk actions by outcome",
	}, []string{"outcome"})
)

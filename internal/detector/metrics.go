package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesTotal tracks emitted opportunities per strategy.
	OpportunitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_opportunities_total",
		Help: "Total number of opportunities emitted per strategy",
	}, []string{"kind"})

	// OpportunitiesDroppedTotal tracks opportunities dropped on a full channel.
	OpportunitiesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_opportunities_dropped_total",
		Help: "Total number of opportunities dropped due to backpressure",
	})

	// DuplicatesSuppressedTotal tracks opportunities suppressed by dedup.
	DuplicatesSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_opportunities_duplicates_suppressed_total",
		Help: "Total number of opportunities suppressed while one was outstanding",
	})
)

package quotes

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal tracks accepted quote updates per venue.
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_quote_updates_total",
		Help: "Total number of accepted quote updates per venue",
	}, []string{"venue"})

	// UpdatesDiscardedTotal tracks out-of-order updates discarded per venue.
	UpdatesDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_quote_updates_discarded_total",
		Help: "Total number of quote updates discarded as out of order",
	}, []string{"venue"})

	// UpdatesDroppedTotal tracks update notifications dropped on a full channel.
	UpdatesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_quote_updates_dropped_total",
		Help: "Total number of quote update notifications dropped due to backpressure",
	}, []string{"venue"})
)

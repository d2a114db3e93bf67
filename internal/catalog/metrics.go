package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarketsTracked tracks the number of markets in the catalog per venue.
	MarketsTracked = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crossvenue_arb_catalog_markets_tracked",
		Help: "Number of markets currently tracked per venue",
	}, []string{"venue"})

	// RefreshErrorsTotal tracks failed catalog refresh passes per venue.
	RefreshErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_catalog_refresh_errors_total",
		Help: "Total number of failed catalog refreshes per venue",
	}, []string{"venue"})
)

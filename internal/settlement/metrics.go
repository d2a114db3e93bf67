package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal tracks settlement passes.
	ChecksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_settlement_checks_total",
		Help: "Total number of settlement passes",
	})

	// SettledTotal tracks positions settled.
	SettledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_settlement_settled_total",
		Help: "Total number of positions settled",
	})
)

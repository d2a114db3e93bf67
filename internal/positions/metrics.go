package positions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommittedCapital tracks USD locked in positions and reservations.
	CommittedCapital = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossvenue_arb_committed_capital_usd",
		Help: "Capital committed to non-terminal positions plus reservations",
	})

	// UnhedgedPositions tracks positions carrying one-sided risk.
	UnhedgedPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossvenue_arb_unhedged_positions",
		Help: "Number of non-terminal positions flagged unhedged",
	})

	// CapacityRefusalsTotal tracks reservations refused at the ceiling.
	CapacityRefusalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_capacity_refusals_total",
		Help: "Total number of reservations refused by the capital ceiling",
	})

	// RealizedPnLTotal accumulates realized profit and loss in USD.
	// A gauge because losses move it down.
	RealizedPnLTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossvenue_arb_realized_pnl_usd_total",
		Help: "Cumulative realized profit and loss in USD",
	})
)

package matcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PairsMatched tracks the number of active cross-venue pairs.
	PairsMatched = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossvenue_arb_matcher_pairs_matched",
		Help: "Number of cross-venue market pairs from the latest match pass",
	})
)

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchPassesTotal tracks completed matching passes.
	MatchPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_scheduler_match_passes_total",
		Help: "Total number of matching passes",
	})

	// WatchedMarkets tracks markets on the quote watchlist.
	WatchedMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossvenue_arb_scheduler_watched_markets",
		Help: "Number of markets on the quote watchlist",
	})

	// PollErrorsTotal tracks failed quote polls per venue.
	PollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_scheduler_poll_errors_total",
		Help: "Total number of failed quote polls per venue",
	}, []string{"venue"})
)

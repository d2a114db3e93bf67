package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal tracks execution outcomes per strategy.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_executions_total",
		Help: "Total number of executions per strategy and outcome",
	}, []string{"kind", "outcome"})

	// SkipsTotal tracks opportunities dropped before submission.
	SkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_execution_skips_total",
		Help: "Total number of opportunities skipped before submission",
	}, []string{"reason"})

	// LegFailuresTotal tracks order legs that did not fully fill.
	LegFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_leg_failures_total",
		Help: "Total number of leg failures per venue and reason",
	}, []string{"venue", "reason"})

	// UnwindsTotal tracks compensation attempts for one-sided fills.
	UnwindsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_unwinds_total",
		Help: "Total number of unwind attempts by result",
	}, []string{"result"})
)

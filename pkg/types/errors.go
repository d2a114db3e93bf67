package types

import (
	"errors"
	"fmt"
)

// ErrStaleData marks quote or catalog data that is too old to act on.
// Opportunities built on stale data are discarded, not retried.
var ErrStaleData = errors.New("stale market data")

// VenueError is an error returned by a venue adapter. Transient errors
// (network, timeout, rate limit) are retried with backoff at the adapter
// layer; fatal errors propagate immediately.
type VenueError struct {
	Venue     Venue
	Op        string
	Transient bool
	Err       error
}

func (e *VenueError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s venue error on %s.%s: %v", kind, e.Venue, e.Op, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// NewTransientVenueError wraps a retryable venue failure.
func NewTransientVenueError(venue Venue, op string, err error) *VenueError {
	return &VenueError{Venue: venue, Op: op, Transient: true, Err: err}
}

// NewFatalVenueError wraps a non-retryable venue failure.
func NewFatalVenueError(venue Venue, op string, err error) *VenueError {
	return &VenueError{Venue: venue, Op: op, Transient: false, Err: err}
}

// IsTransient reports whether err is a transient venue error.
func IsTransient(err error) bool {
	var ve *VenueError
	return errors.As(err, &ve) && ve.Transient
}

// RejectedOrderError is a venue-side refusal of an order. It triggers the
// unwind path on the opposite leg.
type RejectedOrderError struct {
	Venue    Venue
	MarketID string
	Side     Side
	Code     string
	Message  string
}

func (e *RejectedOrderError) Error() string {
	return fmt.Sprintf("order rejected by %s: market=%s side=%s code=%s: %s",
		e.Venue, e.MarketID, e.Side, e.Code, e.Message)
}

// CapacityError is returned when recording a new position would push
// committed capital over the configured ceiling. Executions are refused,
// never queued.
type CapacityError struct {
	Committed float64
	Requested float64
	Ceiling   float64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capital ceiling reached: committed=%.2f requested=%.2f ceiling=%.2f",
		e.Committed, e.Requested, e.Ceiling)
}

// UnhedgedExposureError reports a position whose both-legs-required
// invariant is broken and whose unwind failed. It represents real financial
// risk and must always be surfaced, never absorbed.
type UnhedgedExposureError struct {
	PositionID string
	Venue      Venue
	MarketID   string
	Side       Side
	Size       float64
}

func (e *UnhedgedExposureError) Error() string {
	return fmt.Sprintf("unhedged exposure: position=%s venue=%s market=%s side=%s size=%.2f",
		e.PositionID, e.Venue, e.MarketID, e.Side, e.Size)
}

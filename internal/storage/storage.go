// Package storage persists detected opportunities and the position book.
package storage

import (
	"context"

	"github.com/predarb/crossvenue-arb/internal/detector"
	"github.com/predarb/crossvenue-arb/internal/positions"
)

// Storage persists engine output. Implementations must be safe for
// concurrent use.
type Storage interface {
	// SaveOpportunity records a detected opportunity.
	SaveOpportunity(ctx context.Context, opp *detector.Opportunity) error

	// SavePosition inserts or updates a position by id.
	SavePosition(ctx context.Context, p positions.Position) error

	// Close releases resources.
	Close() error
}

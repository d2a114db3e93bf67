package testutil

import (
	"context"
	"sync"

	"github.com/predarb/crossvenue-arb/internal/detector"
	"github.com/predarb/crossvenue-arb/internal/positions"
)

// MemoryStorage is an in-memory storage.Storage for tests.
type MemoryStorage struct {
	mu            sync.Mutex
	opportunities []*detector.Opportunity
	positions     map[string]positions.Position
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{positions: make(map[string]positions.Position)}
}

// SaveOpportunity implements storage.Storage.
func (m *MemoryStorage) SaveOpportunity(_ context.Context, opp *detector.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opportunities = append(m.opportunities, opp)
	return nil
}

// SavePosition implements storage.Storage.
func (m *MemoryStorage) SavePosition(_ context.Context, p positions.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = p
	return nil
}

// Close implements storage.Storage.
func (m *MemoryStorage) Close() error { return nil }

// Opportunities returns all saved opportunities.
func (m *MemoryStorage) Opportunities() []*detector.Opportunity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*detector.Opportunity, len(m.opportunities))
	copy(out, m.opportunities)
	return out
}

// Positions returns all saved positions keyed by id.
func (m *MemoryStorage) Positions() map[string]positions.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]positions.Position, len(m.positions))
	for k, v := range m.positions {
		out[k] = v
	}
	return out
}

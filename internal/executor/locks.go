package executor

import "sync"

// lockRegistry hands out per-market claims so the two strategies never
// trade the same market concurrently. Claims are try-only: a contended
// market means another execution is in flight and the opportunity is
// skipped rather than queued.
type lockRegistry struct {
	mu   sync.Mutex
	held map[string]bool
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{held: make(map[string]bool)}
}

// tryAcquire claims all keys atomically. It returns false without
// claiming anything if any key is already held.
func (r *lockRegistry) tryAcquire(keys ...string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range keys {
		if r.held[k] {
			return false
		}
	}
	for _, k := range keys {
		r.held[k] = true
	}
	return true
}

// release frees previously acquired keys.
func (r *lockRegistry) release(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.held, k)
	}
}

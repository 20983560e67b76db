package sdk

import (
	"context"
	"sync"
)

type inFlightEntry struct {
	resolved bool
	cancel   context.CancelFunc
}

// inFlightTable holds at most one unresolved entry per request fingerprint.
type inFlightTable struct {
	mu      sync.Mutex
	entries map[uint64]*inFlightEntry
}

func newInFlightTable() *inFlightTable {
	return &inFlightTable{entries: make(map[uint64]*inFlightEntry)}
}

// tryAcquire registers fp as in flight. It refuses while an unresolved entry
// for fp exists; a resolved one is evicted and replaced.
func (t *inFlightTable) tryAcquire(fp uint64, cancel context.CancelFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[fp]; ok {
		if !entry.resolved {
			return false
		}
		delete(t.entries, fp)
	}
	t.entries[fp] = &inFlightEntry{cancel: cancel}
	return true
}

func (t *inFlightTable) markResolved(fp uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[fp]; ok {
		entry.resolved = true
	}
}

// purge drops every resolved entry.
func (t *inFlightTable) purge() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fp, entry := range t.entries {
		if entry.resolved {
			delete(t.entries, fp)
		}
	}
}

// cancelAll cancels every unresolved request. Each of them then completes
// through the timeout path.
func (t *inFlightTable) cancelAll() {
	t.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.entries))
	for _, entry := range t.entries {
		if !entry.resolved && entry.cancel != nil {
			cancels = append(cancels, entry.cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (t *inFlightTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

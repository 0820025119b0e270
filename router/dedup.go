package router

import (
	"sync"
	"time"
)

// dedupIndex remembers canonical message ids for one window. Two messages
// with the same id inside the window are duplicates of one underlying
// transmission seen through different paths.
type dedupIndex struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func newDedupIndex(window time.Duration) *dedupIndex {
	return &dedupIndex{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Check records the id and reports whether it was already seen within the
// window. An id seen outside the window counts as fresh and re-arms.
func (d *dedupIndex) Check(id string) (duplicate bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if prev, ok := d.seen[id]; ok && now.Sub(prev) < d.window {
		return true
	}
	d.seen[id] = now
	return false
}

// Prune evicts entries older than the window; returns how many were
// removed. Called periodically to bound memory.
func (d *dedupIndex) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-d.window)
	removed := 0
	for id, ts := range d.seen {
		if ts.Before(cutoff) {
			delete(d.seen, id)
			removed++
		}
	}
	return removed
}

// Len reports the index size.
func (d *dedupIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

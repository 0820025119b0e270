// Package catalog maintains the per-adapter directory of known remote peers.
//
// Entries are created on first sighting and never deleted implicitly. Updates
// merge field by field: only meaningful (non-placeholder) incoming values
// overwrite stored values, because different physical packets carry disjoint
// subsets of a peer's profile and a naive full overwrite would thrash known
// data back to "Unknown" whenever a minimal packet arrives.
package catalog

import (
	"sort"
	"sync"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

// Timestamps records when each field category of an entry last changed.
type Timestamps struct {
	UserInfo  time.Time `json:"user_info,omitzero"`
	Position  time.Time `json:"position,omitzero"`
	Telemetry time.Time `json:"telemetry,omitzero"`
	LastSeen  time.Time `json:"last_seen"`
}

// Entry is one remote peer as known by one adapter.
type Entry struct {
	ID string `json:"id"` // normalized hex node id

	message.NodeUpdate

	Source    string     `json:"source"` // adapter that last updated the entry
	Updated   Timestamps `json:"updated"`
	FirstSeen time.Time  `json:"first_seen"`
}

// Catalog is an in-memory node directory owned by a single adapter.
// Safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Upsert merges a partial update into the entry for nodeID, creating the
// entry on first sighting, and returns a snapshot of the merged entry.
// LastSeen always advances regardless of update content.
func (c *Catalog) Upsert(nodeID string, update message.NodeUpdate, sourceTag string) Entry {
	id := message.NormalizeNodeID(nodeID)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[id]
	if !ok {
		e = &Entry{ID: id, FirstSeen: now}
		c.entries[id] = e
	}
	e.Source = sourceTag
	e.Updated.LastSeen = now

	if mergeUserInfo(&e.NodeUpdate, update) {
		e.Updated.UserInfo = now
	}
	if mergePosition(&e.NodeUpdate, update) {
		e.Updated.Position = now
	}
	if mergeTelemetry(&e.NodeUpdate, update) {
		e.Updated.Telemetry = now
	}

	return *e
}

// Get returns a snapshot of the entry for nodeID.
func (c *Catalog) Get(nodeID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[message.NormalizeNodeID(nodeID)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// All returns snapshots of every entry, ordered by node id.
func (c *Catalog) All() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of known peers.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Package coordinator implements the registry side of live-preview discovery.
// See doc.go for complete package documentation.
package coordinator

import (
	"net/url"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/liveserver/internal/cluster"
)

// Entry is one registered preview server. Two entries are the same entry only
// when both the name and the URL match; one name may appear with several URLs
// (distinct instances of the same workspace name).
//
// Entries are values. The registry hands out copies, so callers may keep
// them across I/O without holding any lock.
type Entry struct {
	// Name is the human label shown on the dashboard, usually the
	// workspace folder name.
	Name string

	// URL is the base URL of the preview server, normalized to path "/".
	URL url.URL
}

// Equal reports whether e and o describe the same (name, url) pair.
func (e Entry) Equal(o Entry) bool {
	return e.Name == o.Name && e.URL.String() == o.URL.String()
}

// PortEntry converts e into its POST /ports representation.
func (e Entry) PortEntry() cluster.PortEntry {
	return cluster.PortEntry{e.Name, e.URL.String()}
}

// Event builds the ChangeEvent announcing e.
func (e Entry) Event(added bool) cluster.ChangeEvent {
	return cluster.ChangeEvent{Added: added, Name: e.Name, URL: e.URL.String()}
}

// Registry is the table of live preview servers. It is the only structure in
// the coordinator with more than one writer (the register handler and the
// heartbeat monitor), so every mutation is serialized by one RWMutex.
//
// Concurrency Model:
//   - Add and Remove take the write lock
//   - Snapshot and Len take the read lock and may run in parallel
//   - No lock is held while probing or writing to the network; callers work
//     on a Snapshot
//
// Insertion order is kept because it is the order the dashboard shows.
type Registry struct {
	// entries in insertion order.
	entries []Entry

	// mu guards entries.
	mu sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends e unless an identical (name, url) pair is already present.
//
// Returns:
//   - bool: true if the entry was appended, false if it already existed
func (r *Registry) Add(e Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.ContainsFunc(r.entries, e.Equal) {
		return false
	}
	r.entries = append(r.entries, e)
	return true
}

// Remove deletes every entry for which match returns true and returns the
// removed entries in registry order.
//
// Example:
//
//	gone := registry.Remove(func(e Entry) bool { return e.Name == "old" })
func (r *Registry) Remove(match func(Entry) bool) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Entry
	r.entries = slices.DeleteFunc(r.entries, func(e Entry) bool {
		if match(e) {
			removed = append(removed, e)
			return true
		}
		return false
	})
	return removed
}

// RemoveExact deletes exactly the given entries. An entry added after the
// caller took its snapshot survives even if it shares a name with a removed
// one.
func (r *Registry) RemoveExact(targets []Entry) []Entry {
	if len(targets) == 0 {
		return nil
	}
	return r.Remove(func(e Entry) bool {
		return slices.ContainsFunc(targets, e.Equal)
	})
}

// Snapshot returns a copy of all entries in insertion order.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// PortEntries returns the snapshot in its POST /ports form.
func (r *Registry) PortEntries() []cluster.PortEntry {
	snap := r.Snapshot()
	out := make([]cluster.PortEntry, 0, len(snap))
	for _, e := range snap {
		out = append(out, e.PortEntry())
	}
	return out
}

// Package cache holds the in-memory label index shared by every label store
// backend. Backends load it at open and persist its pending entries on Flush.
package cache

import (
	"sort"
	"sync"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
)

// Index is a fingerprint to label map with first-write-wins semantics.
// A later non-fallback label replaces a fallback entry, and any label
// replaces an entry that Restrict found outside the task's label set.
type Index struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
	pending map[string]struct{}

	// stale entries carry labels outside the set; overwrite holds pending
	// entries that must replace what the backend stores.
	stale     map[string]struct{}
	overwrite map[string]struct{}
}

func NewIndex() *Index {
	return &Index{
		entries:   make(map[string]domain.CacheEntry),
		pending:   make(map[string]struct{}),
		stale:     make(map[string]struct{}),
		overwrite: make(map[string]struct{}),
	}
}

// Restrict marks every entry whose label is not in labels as replaceable and
// returns how many were marked.
func (i *Index) Restrict(labels domain.LabelSet) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	marked := 0
	for fp, e := range i.entries {
		if labels.Contains(e.Label) {
			continue
		}
		i.stale[fp] = struct{}{}
		marked++
	}
	return marked
}

// Load seeds entries read from the backend. Loaded entries are not pending.
func (i *Index) Load(entries ...domain.CacheEntry) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, e := range entries {
		if e.Fingerprint == "" || e.Label == "" {
			continue
		}
		if e.Source == "" {
			e.Source = domain.SourceModel
		}
		if existing, ok := i.entries[e.Fingerprint]; ok && !replaces(existing, e) {
			continue
		}
		i.entries[e.Fingerprint] = e
	}
}

func (i *Index) Get(fingerprint string) (domain.CacheEntry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.entries[fingerprint]
	return e, ok
}

// Put stores entry unless an immutable entry already exists. It reports
// whether the index changed.
func (i *Index) Put(entry domain.CacheEntry) bool {
	if entry.Fingerprint == "" || entry.Label == "" || entry.Source == domain.SourceCache {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	existing, ok := i.entries[entry.Fingerprint]
	_, stale := i.stale[entry.Fingerprint]
	if ok && !stale && !replaces(existing, entry) {
		return false
	}
	if stale {
		delete(i.stale, entry.Fingerprint)
		i.overwrite[entry.Fingerprint] = struct{}{}
	}
	i.entries[entry.Fingerprint] = entry
	i.pending[entry.Fingerprint] = struct{}{}
	return true
}

// Overwrites reports whether a pending entry replaces a stored label that
// was outside the set, so the backend must not keep its existing value.
func (i *Index) Overwrites(fingerprint string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.overwrite[fingerprint]
	return ok
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Pending returns entries written since the last MarkFlushed, sorted by
// fingerprint.
func (i *Index) Pending() []domain.CacheEntry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]domain.CacheEntry, 0, len(i.pending))
	for fp := range i.pending {
		out = append(out, i.entries[fp])
	}
	sortEntries(out)
	return out
}

// MarkFlushed clears the given entries from the pending set.
func (i *Index) MarkFlushed(entries []domain.CacheEntry) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, e := range entries {
		if current, ok := i.entries[e.Fingerprint]; ok && current == e {
			delete(i.pending, e.Fingerprint)
			delete(i.overwrite, e.Fingerprint)
		}
	}
}

// Snapshot returns every entry sorted by fingerprint.
func (i *Index) Snapshot() []domain.CacheEntry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]domain.CacheEntry, 0, len(i.entries))
	for _, e := range i.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func replaces(existing, next domain.CacheEntry) bool {
	return existing.Source == domain.SourceFallback && next.Source != domain.SourceFallback
}

func sortEntries(entries []domain.CacheEntry) {
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].Fingerprint < entries[b].Fingerprint
	})
}

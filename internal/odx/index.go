/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package odx

import (
	"sync"

	"github.com/veilmesh/nodecore/pkg/metrics"
)

// Index is the in-memory facet index. Readers share a read lock; every
// writer takes one index-wide write lock, so writes to distinct facet keys
// are serialized too rather than running in parallel. It holds no
// persistence concern of its own — Store owns durability, mirroring the
// audit chain's separation of in-memory state from its writer.
type Index struct {
	mu      sync.RWMutex
	entries map[EntryKey]*Entry
	metrics *metrics.ODXMetrics
}

// NewIndex returns an empty Index with no metrics wired.
func NewIndex() *Index {
	return &Index{entries: make(map[EntryKey]*Entry)}
}

// NewIndexWithMetrics returns an empty Index that records merges and size
// to m as it is used.
func NewIndexWithMetrics(m *metrics.ODXMetrics) *Index {
	return &Index{entries: make(map[EntryKey]*Entry), metrics: m}
}

// Merge additively aggregates e into the index, keyed on (facet-key,
// time-bucket, geo-bucket, ontology-version) (§4.5). The first merge for a
// key inserts e as-is; subsequent merges sum counts and otherwise take the
// incoming entry's metadata (quality, floor, resolutions), since a later
// rebuild reflects the current ontology's view of the same aggregate.
// Every merge, whatever its key, is serialized under the single index
// lock, so the resulting counts are the same regardless of interleaving.
func (idx *Index) Merge(e *Entry) *Entry {
	key := e.Key()
	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing, ok := idx.entries[key]
	if !ok {
		merged := *e
		idx.entries[key] = &merged
		idx.recordMerge()
		return &merged
	}

	merged := *e
	merged.Count = existing.Count + e.Count
	idx.entries[key] = &merged
	idx.recordMerge()
	return &merged
}

func (idx *Index) recordMerge() {
	if idx.metrics == nil {
		return
	}
	idx.metrics.RecordMerge()
	idx.metrics.SetIndexSize(len(idx.entries))
}

// Get returns the entry stored under key, if any.
func (idx *Index) Get(key EntryKey) (*Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[key]
	return e, ok
}

// Len returns the number of distinct entries currently held.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Snapshot returns every entry meeting its own privacy floor — the only
// entries ever safe to expose to a coordinator. Entries below floor are
// held back for further coalescing rather than returned.
func (idx *Index) Snapshot() []*Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]*Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		if e.MeetsFloor() {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears every entry, used when the ontology version bumps and the
// index must be regenerated from scratch rather than carrying forward
// entries keyed against a stale ontology version (§3's ownership note:
// "ODX entries are owned by the index and regenerated on schema-version
// bump").
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = make(map[EntryKey]*Entry)
}

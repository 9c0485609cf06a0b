// Package partition implements the year-keyed cache of entity
// collections. Each partition owns its sorted entity list plus the
// temporal index derived from it; the store exposes a merged,
// deduplicated view across all partitions.
//
// The store itself is not safe for concurrent use. All access is
// serialized by the engine that owns it, mirroring the single shared
// mutable resource in the sync engine's concurrency model.
package partition

import (
	"fmt"
	"sort"

	"github.com/stormlight/almanac/internal/entity"
	"github.com/stormlight/almanac/internal/index"
)

// Partition is one year-scoped bucket of cached entities.
type Partition struct {
	Key      entity.PartitionKey
	Entities []*entity.Entity // sorted by start time
	Index    *index.Index
}

// Store caches entities in year partitions and maintains the merged view.
type Store struct {
	parts map[entity.PartitionKey]*Partition

	// activeSource scopes the Merged view; MergedAll ignores it.
	activeSource entity.SourceTag

	merged    []*entity.Entity
	mergedAll []*entity.Entity

	// onRebuild fires after every merged-view recompute, letting the
	// task layer refresh its derived list eagerly.
	onRebuild func()
}

// NewStore returns an empty store whose Merged view is scoped to the
// given source tag.
func NewStore(active entity.SourceTag) *Store {
	return &Store{
		parts:        make(map[entity.PartitionKey]*Partition),
		activeSource: active,
	}
}

// OnRebuild registers a callback invoked after every merged-view
// recompute. Only one callback is supported.
func (s *Store) OnRebuild(fn func()) {
	s.onRebuild = fn
}

// Get returns the partition for the key, or nil if it is not cached.
func (s *Store) Get(key entity.PartitionKey) *Partition {
	return s.parts[key]
}

// Has reports whether the partition is cached (even if empty).
func (s *Store) Has(key entity.PartitionKey) bool {
	_, ok := s.parts[key]
	return ok
}

// Keys returns the cached partition keys in no particular order.
func (s *Store) Keys() []entity.PartitionKey {
	keys := make([]entity.PartitionKey, 0, len(s.parts))
	for k := range s.parts {
		keys = append(keys, k)
	}
	return keys
}

// Put replaces the partition's contents wholesale, rebuilding its index
// and refreshing the merged view.
func (s *Store) Put(key entity.PartitionKey, entities []*entity.Entity) {
	p := &Partition{
		Key:   key,
		Index: index.New(),
	}
	sorted := append([]*entity.Entity(nil), entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})
	for _, e := range sorted {
		p.Entities = append(p.Entities, e)
		p.Index.Add(e)
	}
	s.parts[key] = p
	s.rebuild()
}

// Insert adds a single entity to the partition implied by its source
// tag and start year, creating the partition if needed.
func (s *Store) Insert(e *entity.Entity) {
	key := e.PartitionKey()
	p := s.parts[key]
	if p == nil {
		p = &Partition{Key: key, Index: index.New()}
		s.parts[key] = p
	}
	p.Entities = insertSorted(p.Entities, e)
	p.Index.Add(e)
	s.rebuild()
}

// Remove deletes the entity with the given ID from whichever partition
// holds it. Returns the removed entity, or nil if it was not cached.
func (s *Store) Remove(id string) *entity.Entity {
	for _, p := range s.parts {
		for i, e := range p.Entities {
			if e.ID == id {
				p.Entities = append(p.Entities[:i], p.Entities[i+1:]...)
				p.Index.Remove(e)
				s.rebuild()
				return e
			}
		}
	}
	return nil
}

// RemoveMatching deletes every cached entity whose ID matches the
// reference under any of its known representations (bare remote ID,
// composite container::id, ::id suffix). Returns the removed entities.
func (s *Store) RemoveMatching(ref entity.Ref) []*entity.Entity {
	var removed []*entity.Entity
	for _, p := range s.parts {
		kept := p.Entities[:0]
		for _, e := range p.Entities {
			if ref.Matches(e.ID) {
				p.Index.Remove(e)
				removed = append(removed, e)
				continue
			}
			kept = append(kept, e)
		}
		p.Entities = kept
	}
	if len(removed) > 0 {
		s.rebuild()
	}
	return removed
}

// Find returns the cached entity with the given ID, or nil.
func (s *Store) Find(id string) *entity.Entity {
	for _, p := range s.parts {
		for _, e := range p.Entities {
			if e.ID == id {
				return e
			}
		}
	}
	return nil
}

// Merged returns the deduplicated, start-sorted view of all cached
// entities carrying the active source tag.
func (s *Store) Merged() []*entity.Entity {
	return s.merged
}

// MergedAll returns the deduplicated, start-sorted view across every
// partition regardless of source tag.
func (s *Store) MergedAll() []*entity.Entity {
	return s.mergedAll
}

// Reset drops every cached partition. Used only when a full resync
// found the cache incompatible with the authoritative state.
func (s *Store) Reset() {
	s.parts = make(map[entity.PartitionKey]*Partition)
	s.rebuild()
}

// rebuild recomputes the merged views. Each logical entity appears
// exactly once, deduplicated by partition key plus identity; cost is
// bounded by the total cached entity count.
func (s *Store) rebuild() {
	seen := make(map[string]bool)
	all := make([]*entity.Entity, 0)
	for _, p := range s.parts {
		for _, e := range p.Entities {
			dedupKey := fmt.Sprintf("%s:%d:%s", p.Key.Source, p.Key.Year, e.ID)
			if seen[dedupKey] {
				continue
			}
			seen[dedupKey] = true
			all = append(all, e)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Start.Before(all[j].Start)
	})

	s.mergedAll = all
	merged := make([]*entity.Entity, 0, len(all))
	for _, e := range all {
		if e.Source == s.activeSource {
			merged = append(merged, e)
		}
	}
	s.merged = merged

	if s.onRebuild != nil {
		s.onRebuild()
	}
}

func insertSorted(list []*entity.Entity, e *entity.Entity) []*entity.Entity {
	i := len(list)
	for ; i > 0; i-- {
		if !list[i-1].Start.After(e.Start) {
			break
		}
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = e
	return list
}

package partition

import (
	"testing"
	"time"

	"github.com/stormlight/almanac/internal/entity"
	"github.com/stormlight/almanac/internal/index"
)

func event(id string, start time.Time) *entity.Entity {
	return &entity.Entity{
		ID:       id,
		RemoteID: id,
		Source:   entity.SourceEvent,
		Start:    start,
		End:      start.Add(time.Hour),
	}
}

func TestPutRebuildsIndexAndMergedView(t *testing.T) {
	s := NewStore(entity.SourceEvent)
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	key := entity.PartitionKey{Source: entity.SourceEvent, Year: 2025}

	s.Put(key, []*entity.Entity{event("e2", start.Add(time.Hour)), event("e1", start)})

	p := s.Get(key)
	if p == nil {
		t.Fatal("partition not installed")
	}
	if len(p.Entities) != 2 || p.Entities[0].ID != "e1" {
		t.Errorf("partition list not start-sorted: %v", ids(p.Entities))
	}
	if len(p.Index.ByDate[index.DateKeyFor(start)]) != 2 {
		t.Error("index not rebuilt on put")
	}
	if len(s.Merged()) != 2 {
		t.Errorf("merged view has %d entities, want 2", len(s.Merged()))
	}
}

func TestInsertCreatesPartitionFromStartYear(t *testing.T) {
	s := NewStore(entity.SourceEvent)
	e := event("e1", time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC))

	s.Insert(e)

	key := entity.PartitionKey{Source: entity.SourceEvent, Year: 2026}
	if !s.Has(key) {
		t.Fatal("partition for 2026 not created")
	}
	if s.Find("e1") == nil {
		t.Error("inserted entity not findable")
	}
}

func TestRemoveUpdatesListAndIndex(t *testing.T) {
	s := NewStore(entity.SourceEvent)
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	e := event("e1", start)
	s.Insert(e)

	removed := s.Remove("e1")
	if removed == nil || removed.ID != "e1" {
		t.Fatal("Remove did not return the entity")
	}

	key := entity.PartitionKey{Source: entity.SourceEvent, Year: 2025}
	p := s.Get(key)
	if len(p.Entities) != 0 {
		t.Error("entity still in partition list")
	}
	if len(p.Index.ByDate) != 0 {
		t.Error("entity still in ByDate after removal")
	}
	if len(s.Merged()) != 0 {
		t.Error("entity still in merged view")
	}
}

func TestRemoveMatchingHitsEveryRepresentation(t *testing.T) {
	s := NewStore(entity.SourceEvent)
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	bare := event("ev-9", start)
	composite := &entity.Entity{
		ID: "cal-1::ev-9", RemoteID: "ev-9", ContainerID: "cal-1",
		Source: entity.SourceEvent, Start: start.Add(time.Hour), End: start.Add(2 * time.Hour),
	}
	other := event("ev-10", start)
	s.Insert(bare)
	s.Insert(composite)
	s.Insert(other)

	removed := s.RemoveMatching(entity.RemoteRef("cal-1", "ev-9"))
	if len(removed) != 2 {
		t.Fatalf("removed %d entities, want 2", len(removed))
	}
	if s.Find("ev-10") == nil {
		t.Error("unrelated entity removed")
	}
	if len(s.Merged()) != 1 {
		t.Errorf("merged view has %d entities, want 1", len(s.Merged()))
	}
}

func TestMergedViewScopesToActiveSource(t *testing.T) {
	s := NewStore(entity.SourceEvent)
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.Insert(event("e1", start))

	taskEnt := &entity.Entity{
		ID: "t1", RemoteID: "t1", Source: entity.SourceTask,
		Start: start, End: start,
	}
	s.Insert(taskEnt)

	if len(s.Merged()) != 1 {
		t.Errorf("Merged() has %d entities, want 1 (events only)", len(s.Merged()))
	}
	if len(s.MergedAll()) != 2 {
		t.Errorf("MergedAll() has %d entities, want 2", len(s.MergedAll()))
	}
}

func TestMergedViewIsSortedAndDeduplicated(t *testing.T) {
	s := NewStore(entity.SourceEvent)
	dec := time.Date(2025, 12, 30, 9, 0, 0, 0, time.UTC)
	jan := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

	s.Insert(event("late", jan))
	s.Insert(event("early", dec))

	merged := s.Merged()
	if merged[0].ID != "early" || merged[1].ID != "late" {
		t.Errorf("merged view not start-sorted across partitions: %v", ids(merged))
	}
}

func TestResetDropsAllPartitions(t *testing.T) {
	s := NewStore(entity.SourceEvent)
	s.Insert(event("e1", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))

	s.Reset()

	if len(s.Keys()) != 0 || len(s.MergedAll()) != 0 {
		t.Error("Reset left cached state behind")
	}
}

func TestOnRebuildFiresOnEveryWrite(t *testing.T) {
	s := NewStore(entity.SourceEvent)
	calls := 0
	s.OnRebuild(func() { calls++ })

	e := event("e1", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s.Insert(e)
	s.Remove("e1")

	if calls != 2 {
		t.Errorf("rebuild hook fired %d times, want 2", calls)
	}
}

func ids(list []*entity.Entity) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.ID
	}
	return out
}

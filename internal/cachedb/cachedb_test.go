package cachedb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stormlight/almanac/internal/entity"
	"github.com/stormlight/almanac/internal/revision"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "snapshot.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return db
}

func event(id string, start time.Time, title string) *entity.Entity {
	return &entity.Entity{
		ID:       id,
		RemoteID: id,
		Source:   entity.SourceEvent,
		Start:    start,
		End:      start.Add(time.Hour),
		Title:    title,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)

	entities := []*entity.Entity{
		event("ev-2025", time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), "This year"),
		event("ev-2026", time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC), "Next year"),
	}
	revs := revision.Revisions{Combined: 42, StreamA: 40, StreamB: 41}

	if err := db.SaveSnapshot(entities, revs); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	parts, gotRevs, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if len(parts) != 2 {
		t.Fatalf("len(parts) = %d, want one partition per year", len(parts))
	}
	p2025 := parts[entity.PartitionKey{Source: entity.SourceEvent, Year: 2025}]
	if len(p2025) != 1 || p2025[0].ID != "ev-2025" {
		t.Errorf("2025 partition = %v, want ev-2025", p2025)
	}
	p2026 := parts[entity.PartitionKey{Source: entity.SourceEvent, Year: 2026}]
	if len(p2026) != 1 || p2026[0].Title != "Next year" {
		t.Errorf("2026 partition = %v, want ev-2026", p2026)
	}
	if gotRevs != revs {
		t.Errorf("revisions = %+v, want %+v", gotRevs, revs)
	}
}

func TestSaveSnapshotSkipsTaskEntities(t *testing.T) {
	db := openTestDB(t)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	virtualized := event("t-1", start, "Virtualized task")
	virtualized.Source = entity.SourceTask

	err := db.SaveSnapshot([]*entity.Entity{
		event("ev-1", start, "Real event"),
		virtualized,
	}, revision.Revisions{})
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	parts, _, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	for key := range parts {
		if key.Source == entity.SourceTask {
			t.Error("task partition persisted, want events only")
		}
	}
	total := 0
	for _, list := range parts {
		total += len(list)
	}
	if total != 1 {
		t.Errorf("persisted %d entities, want 1", total)
	}
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	if err := db.SaveSnapshot([]*entity.Entity{
		event("ev-old", start, "Old"),
	}, revision.Revisions{Combined: 1}); err != nil {
		t.Fatalf("first SaveSnapshot: %v", err)
	}
	if err := db.SaveSnapshot([]*entity.Entity{
		event("ev-new", start, "New"),
	}, revision.Revisions{Combined: 2}); err != nil {
		t.Fatalf("second SaveSnapshot: %v", err)
	}

	parts, revs, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	list := parts[entity.PartitionKey{Source: entity.SourceEvent, Year: 2025}]
	if len(list) != 1 || list[0].ID != "ev-new" {
		t.Errorf("partition = %v, want only the newer snapshot", list)
	}
	if revs.Combined != 2 {
		t.Errorf("Combined = %d, want 2", revs.Combined)
	}
}

func TestLoadSnapshotOnFreshDatabase(t *testing.T) {
	db := openTestDB(t)

	parts, revs, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("len(parts) = %d, want 0", len(parts))
	}
	if revs != (revision.Revisions{}) {
		t.Errorf("revisions = %+v, want zero", revs)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	if err := db.SaveSnapshot([]*entity.Entity{
		event("ev-1", start, "a"),
		event("ev-2", start.Add(time.Hour), "b"),
		event("ev-3", time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC), "c"),
	}, revision.Revisions{Combined: 9}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	s, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Partitions != 2 {
		t.Errorf("Partitions = %d, want 2", s.Partitions)
	}
	if s.Entities != 3 {
		t.Errorf("Entities = %d, want 3", s.Entities)
	}
	if s.Revisions.Combined != 9 {
		t.Errorf("Combined = %d, want 9", s.Revisions.Combined)
	}
	if s.SavedAt.IsZero() {
		t.Error("SavedAt not recorded")
	}
}

package task

import (
	"testing"
	"time"

	"github.com/stormlight/almanac/internal/entity"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
}

func TestVirtualizeDatedTask(t *testing.T) {
	v := NewVirtualizer(fixedNow)
	due := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	e := v.Virtualize(Task{ID: "t-1", Title: "Renew passport", Due: &due})

	if !e.Start.Equal(due) || !e.End.Equal(due) {
		t.Errorf("Start/End = %v/%v, want due date %v", e.Start, e.End, due)
	}
	if !e.AllDay {
		t.Error("date-only due should virtualize as all-day")
	}
	if e.Source != entity.SourceTask {
		t.Errorf("Source = %q, want task", e.Source)
	}
	if e.ID != "t-1" || e.RemoteID != "t-1" {
		t.Errorf("ID/RemoteID = %q/%q, want task id carried through", e.ID, e.RemoteID)
	}
}

func TestVirtualizeTimedDueIsNotAllDay(t *testing.T) {
	v := NewVirtualizer(fixedNow)
	due := time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC)

	e := v.Virtualize(Task{ID: "t-1", Title: "Call dentist", Due: &due})

	if e.AllDay {
		t.Error("due with a time component should not be all-day")
	}
	if !e.Start.Equal(due) {
		t.Errorf("Start = %v, want %v", e.Start, due)
	}
}

func TestVirtualizeUndatedTaskGetsSyntheticStart(t *testing.T) {
	v := NewVirtualizer(fixedNow)

	e := v.Virtualize(Task{ID: "t-1", Title: "Someday"})

	if !e.Start.Equal(fixedNow()) {
		t.Errorf("Start = %v, want synthetic now %v", e.Start, fixedNow())
	}
	if !e.AllDay {
		t.Error("undated task should be all-day")
	}
	if e.PartitionKey().Year != 2025 {
		t.Errorf("partition year = %d, want 2025", e.PartitionKey().Year)
	}
}

func TestInverseMapping(t *testing.T) {
	v := NewVirtualizer(fixedNow)
	e := v.Virtualize(Task{ID: "t-9", Title: "x"})

	id, ok := v.TaskID(e.ID)
	if !ok || id != "t-9" {
		t.Fatalf("TaskID(%q) = %q, %v; want t-9, true", e.ID, id, ok)
	}

	v.Forget(e.ID)
	if _, ok := v.TaskID(e.ID); ok {
		t.Error("mapping should be gone after Forget")
	}
}

func TestTasksRoundTripAndOrder(t *testing.T) {
	v := NewVirtualizer(fixedNow)

	early := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	var merged []*entity.Entity
	merged = append(merged, v.Virtualize(Task{ID: "t-late", Title: "Later", Due: &late}))
	merged = append(merged, v.Virtualize(Task{ID: "t-none", Title: "Undated"}))
	merged = append(merged, v.Virtualize(Task{ID: "t-early", Title: "Sooner", Due: &early, Notes: "ring twice"}))
	// Events in the merged view are filtered out entirely.
	merged = append(merged, &entity.Entity{
		ID: "ev-1", RemoteID: "ev-1", Source: entity.SourceEvent,
		Start: early, End: early, Title: "Not a task",
	})

	tasks := v.Tasks(merged)
	if len(tasks) != 3 {
		t.Fatalf("len(tasks) = %d, want 3", len(tasks))
	}
	if tasks[0].ID != "t-early" || tasks[1].ID != "t-late" || tasks[2].ID != "t-none" {
		t.Errorf("order = %s, %s, %s; want due order with undated last",
			tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
	if tasks[0].Notes != "ring twice" {
		t.Errorf("Notes = %q, lost in round trip", tasks[0].Notes)
	}
	if tasks[0].Due == nil || !tasks[0].Due.Equal(early) {
		t.Errorf("Due = %v, want %v", tasks[0].Due, early)
	}
	if tasks[2].Due != nil {
		t.Error("undated task must come back without a due date")
	}
}

func TestTasksEqualDueSortsByTitle(t *testing.T) {
	v := NewVirtualizer(fixedNow)
	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	merged := []*entity.Entity{
		v.Virtualize(Task{ID: "t-b", Title: "bravo", Due: &due}),
		v.Virtualize(Task{ID: "t-a", Title: "alpha", Due: &due}),
	}

	tasks := v.Tasks(merged)
	if tasks[0].Title != "alpha" || tasks[1].Title != "bravo" {
		t.Errorf("order = %q, %q; want title tiebreak", tasks[0].Title, tasks[1].Title)
	}
}

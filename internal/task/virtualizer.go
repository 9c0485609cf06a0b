// Package task projects tasks into the shared calendar entity shape so
// both kinds flow through one partition store and temporal index.
//
// The virtualizer also keeps the inverse mapping, so task-specific
// update/delete calls can be issued against the original task
// identifier even though the cache only ever sees the entity shape.
package task

import (
	"sort"
	"time"

	"github.com/stormlight/almanac/internal/entity"
)

// Task is the native task shape as exposed by the remote service.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	Due       *time.Time `json:"due,omitempty"`
	Completed bool       `json:"completed"`
}

type origin struct {
	taskID string
	hadDue bool
}

// Virtualizer maps tasks to virtualized entities and back.
//
// Not safe for concurrent use; the owning engine serializes access.
type Virtualizer struct {
	origins map[string]origin // entity ID -> original task

	// now supplies the synthetic start for tasks without a due date;
	// nil means time.Now.
	now func() time.Time
}

// NewVirtualizer returns an empty virtualizer. now may be nil.
func NewVirtualizer(now func() time.Time) *Virtualizer {
	if now == nil {
		now = time.Now
	}
	return &Virtualizer{
		origins: make(map[string]origin),
		now:     now,
	}
}

// Virtualize reshapes a task into the shared entity form and records
// the inverse mapping. The due date becomes the start; a task without
// a due date gets a synthetic "now" start so it still has a partition
// home. AllDay is set unless the due value carries a time component.
func (v *Virtualizer) Virtualize(t Task) *entity.Entity {
	start := v.now()
	hadDue := t.Due != nil
	if hadDue {
		start = *t.Due
	}

	allDay := true
	if hadDue && hasTimeComponent(*t.Due) {
		allDay = false
	}

	e := &entity.Entity{
		ID:        t.ID,
		RemoteID:  t.ID,
		Source:    entity.SourceTask,
		Start:     start,
		End:       start,
		AllDay:    allDay,
		Title:     t.Title,
		Notes:     t.Notes,
		Completed: t.Completed,
	}
	v.origins[e.ID] = origin{taskID: t.ID, hadDue: hadDue}
	return e
}

// TaskID returns the original task identifier behind a virtualized
// entity ID, and whether the entity is a known virtualized task.
func (v *Virtualizer) TaskID(entityID string) (string, bool) {
	o, ok := v.origins[entityID]
	return o.taskID, ok
}

// Forget drops the inverse mapping for an entity that was removed.
func (v *Virtualizer) Forget(entityID string) {
	delete(v.origins, entityID)
}

// Tasks derives the consumer-facing task list from the merged entity
// view: entities carrying the task source tag, reshaped back to tasks
// and sorted by due date then title.
func (v *Virtualizer) Tasks(merged []*entity.Entity) []Task {
	var tasks []Task
	for _, e := range merged {
		if e.Source != entity.SourceTask {
			continue
		}
		t := Task{
			ID:        e.RemoteID,
			Title:     e.Title,
			Notes:     e.Notes,
			Completed: e.Completed,
		}
		if o, ok := v.origins[e.ID]; ok {
			t.ID = o.taskID
			if o.hadDue {
				due := e.Start
				t.Due = &due
			}
		} else {
			due := e.Start
			t.Due = &due
		}
		tasks = append(tasks, t)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		di, dj := dueOrInf(tasks[i]), dueOrInf(tasks[j])
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return tasks[i].Title < tasks[j].Title
	})
	return tasks
}

// dueOrInf sorts undated tasks after every dated one.
func dueOrInf(t Task) time.Time {
	if t.Due != nil {
		return *t.Due
	}
	return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
}

func hasTimeComponent(t time.Time) bool {
	return t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0
}

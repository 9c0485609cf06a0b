// Package index maintains the two derived temporal views over a
// partition's entity set: a by-calendar-day view and a by-hour-of-day
// view. Both are updated incrementally as entities are added and
// removed, and must mirror the partition's entity list exactly.
package index

import (
	"time"

	"github.com/stormlight/almanac/internal/entity"
)

// DateKey is a calendar date in YYYY-MM-DD form, in the entity's
// local representation of time.
type DateKey string

const dateKeyLayout = "2006-01-02"

// DateKeyFor returns the DateKey for a point in time.
func DateKeyFor(t time.Time) DateKey {
	return DateKey(t.Format(dateKeyLayout))
}

// Index holds the derived temporal views for one partition.
//
// ByDate lists every entity whose inclusive date span covers the date.
// ByHour buckets entities by the hour their start time falls in; unlike
// ByDate it only ever has one bucket per entity.
type Index struct {
	ByDate map[DateKey][]*entity.Entity
	ByHour map[DateKey]map[int][]*entity.Entity
}

// New returns an empty index.
func New() *Index {
	return &Index{
		ByDate: make(map[DateKey][]*entity.Entity),
		ByHour: make(map[DateKey]map[int][]*entity.Entity),
	}
}

// Add inserts the entity into both views, preserving start-time sort
// order within each bucket. Entities with equal start times keep
// insertion order.
func (ix *Index) Add(e *entity.Entity) {
	for _, day := range DateSpan(e) {
		ix.ByDate[day] = insertSorted(ix.ByDate[day], e)
	}

	startDay := DateKeyFor(e.Start)
	hour := e.Start.Hour()
	if ix.ByHour[startDay] == nil {
		ix.ByHour[startDay] = make(map[int][]*entity.Entity)
	}
	ix.ByHour[startDay][hour] = insertSorted(ix.ByHour[startDay][hour], e)
}

// Remove deletes the entity from both views. Matching is by identity
// (entity ID), not pointer equality, so a freshly-decoded copy of a
// cached entity removes the cached one. Emptied buckets are pruned.
func (ix *Index) Remove(e *entity.Entity) {
	for _, day := range DateSpan(e) {
		ix.ByDate[day] = removeByID(ix.ByDate[day], e.ID)
		if len(ix.ByDate[day]) == 0 {
			delete(ix.ByDate, day)
		}
	}

	startDay := DateKeyFor(e.Start)
	hour := e.Start.Hour()
	if hours := ix.ByHour[startDay]; hours != nil {
		hours[hour] = removeByID(hours[hour], e.ID)
		if len(hours[hour]) == 0 {
			delete(hours, hour)
		}
		if len(hours) == 0 {
			delete(ix.ByHour, startDay)
		}
	}
}

// DateSpan returns every date the entity occupies, inclusive of both
// endpoints. For all-day entities an end falling exactly on local
// midnight is an exclusive boundary and rolls back one day, unless that
// would land before the start date.
func DateSpan(e *entity.Entity) []DateKey {
	start := dateOnly(e.Start)
	end := e.End
	if end.IsZero() || end.Before(e.Start) {
		end = e.Start
	}

	endDay := dateOnly(end)
	if e.AllDay && isMidnight(end) && endDay.After(start) {
		endDay = endDay.AddDate(0, 0, -1)
	}

	var days []DateKey
	for d := start; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		days = append(days, DateKeyFor(d))
	}
	return days
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// insertSorted places e into the bucket keeping ascending start order.
// Equal starts insert after existing entries so original order is stable.
func insertSorted(bucket []*entity.Entity, e *entity.Entity) []*entity.Entity {
	i := len(bucket)
	for ; i > 0; i-- {
		if !bucket[i-1].Start.After(e.Start) {
			break
		}
	}
	bucket = append(bucket, nil)
	copy(bucket[i+1:], bucket[i:])
	bucket[i] = e
	return bucket
}

func removeByID(bucket []*entity.Entity, id string) []*entity.Entity {
	for i, cur := range bucket {
		if cur.ID == id {
			return append(bucket[:i], bucket[i+1:]...)
		}
	}
	return bucket
}

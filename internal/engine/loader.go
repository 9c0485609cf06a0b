package engine

import (
	"context"
	"time"

	"github.com/stormlight/almanac/internal/entity"
	"github.com/stormlight/almanac/internal/revision"
)

// EnsureRangeLoaded guarantees every year partition overlapping
// [start, end] is populated, fetching the missing ones, and returns the
// merged event view. The first call also loads the task collection.
func (en *Engine) EnsureRangeLoaded(ctx context.Context, start, end time.Time) ([]*entity.Entity, error) {
	en.mu.Lock()
	en.visibleStart, en.visibleEnd = start, end
	var missing []int
	for y := start.Year(); y <= end.Year(); y++ {
		if !en.store.Has(entity.PartitionKey{Source: entity.SourceEvent, Year: y}) {
			missing = append(missing, y)
		}
	}
	needTasks := !en.tasksLoaded
	if len(missing) > 0 || needTasks {
		en.loading = true
	}
	en.mu.Unlock()

	for _, year := range missing {
		if err := en.loadYear(ctx, year); err != nil {
			en.mu.Lock()
			en.loading = false
			en.lastError = err.Error()
			en.mu.Unlock()
			return nil, newError(CodeLoadFailed, err)
		}
	}

	if needTasks {
		if err := en.loadTasks(ctx); err != nil {
			en.mu.Lock()
			en.loading = false
			en.lastError = err.Error()
			en.mu.Unlock()
			return nil, newError(CodeLoadFailed, err)
		}
	}

	en.mu.Lock()
	defer en.mu.Unlock()
	en.loading = false
	en.lastError = ""
	return append([]*entity.Entity(nil), en.store.Merged()...), nil
}

// Preload installs persisted partitions and revision counters before
// the first fetch, giving consumers last-known-good state immediately.
// Preloaded partitions are still refreshed by the normal paths.
func (en *Engine) Preload(parts map[entity.PartitionKey][]*entity.Entity, revs revision.Revisions) {
	en.mu.Lock()
	defer en.mu.Unlock()

	for key, list := range parts {
		normalized := make([]*entity.Entity, 0, len(list))
		for _, e := range list {
			normalized = append(normalized, entity.Normalize(e))
		}
		en.store.Put(key, normalized)
	}
	en.revs.Observe(revs.Combined)
	en.revs.ObserveStreamA(revs.StreamA)
	en.revs.ObserveStreamB(revs.StreamB)
}

// loadYear fetches one calendar year and installs it as a partition.
func (en *Engine) loadYear(ctx context.Context, year int) error {
	res, err := en.transport.ListEntities(ctx, yearStart(year), yearEnd(year))
	if err != nil {
		return err
	}

	normalized := make([]*entity.Entity, 0, len(res.Items))
	for _, item := range res.Items {
		normalized = append(normalized, entity.Normalize(item))
	}

	en.mu.Lock()
	defer en.mu.Unlock()
	en.store.Put(entity.PartitionKey{Source: entity.SourceEvent, Year: year}, normalized)
	en.observeListLocked(res.Revision, res.StreamARevision, res.StreamBRevision)
	return nil
}

// loadTasks fetches the task collection, virtualizes every task, and
// installs the resulting year partitions.
func (en *Engine) loadTasks(ctx context.Context) error {
	res, err := en.transport.ListTasks(ctx)
	if err != nil {
		return err
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	byYear := make(map[int][]*entity.Entity)
	for _, t := range res.Items {
		e := en.virtual.Virtualize(t)
		byYear[e.Start.Year()] = append(byYear[e.Start.Year()], e)
	}
	for year, entities := range byYear {
		en.store.Put(entity.PartitionKey{Source: entity.SourceTask, Year: year}, entities)
	}
	en.revs.Observe(res.Revision)
	en.tasksLoaded = true
	return nil
}

// Refresh re-fetches the currently visible range and reconciles it into
// the cache: cached entities overlapping the visible range that the new
// fetch no longer contains are dropped, then every fetched entity is
// (re)inserted. Partitions for years outside the visible range keep
// their cached contents.
func (en *Engine) Refresh(ctx context.Context) error {
	en.mu.Lock()
	start, end := en.visibleStart, en.visibleEnd
	en.mu.Unlock()

	if start.IsZero() {
		now := en.now()
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)
	}

	res, err := en.transport.ListEntities(ctx, start, end)
	if err != nil {
		en.mu.Lock()
		en.lastError = err.Error()
		en.mu.Unlock()
		en.logger.Printf("Refresh failed, cache left in place: %v", err)
		return newError(CodeLoadFailed, err)
	}

	en.mu.Lock()

	fetched := make([]*entity.Entity, 0, len(res.Items))
	present := make(map[string]bool, len(res.Items))
	for _, item := range res.Items {
		e := entity.Normalize(item)
		fetched = append(fetched, e)
		present[e.ID] = true
	}

	// Drop cached events the visible range no longer contains remotely.
	var stale []string
	for _, e := range en.store.MergedAll() {
		if e.Source != entity.SourceEvent {
			continue
		}
		if !overlaps(e, start, end) {
			continue
		}
		if !present[e.ID] {
			stale = append(stale, e.ID)
		}
	}
	for _, id := range stale {
		en.store.Remove(id)
	}

	for _, e := range fetched {
		en.store.RemoveMatching(e.Ref())
		en.store.Insert(e)
	}

	en.observeListLocked(res.Revision, res.StreamARevision, res.StreamBRevision)
	en.lastError = ""

	var snap Snapshot
	notify := en.onRefreshed
	if notify != nil {
		snap = en.snapshotLocked()
	}
	en.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
	return nil
}

// PrefetchAdjacent notes the month the user navigated to and, when it
// sits on a year boundary (January or December), eagerly loads the
// adjacent year in the background. Prefetch failures are swallowed:
// the data loads on demand later anyway.
func (en *Engine) PrefetchAdjacent(viewed time.Time) {
	var year int
	switch viewed.Month() {
	case time.January:
		year = viewed.Year() - 1
	case time.December:
		year = viewed.Year() + 1
	default:
		return
	}

	en.mu.Lock()
	cached := en.store.Has(entity.PartitionKey{Source: entity.SourceEvent, Year: year})
	en.mu.Unlock()
	if cached {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := en.loadYear(ctx, year); err != nil {
			en.logger.Printf("Prefetch of year %d failed (ignored): %v", year, err)
		}
	}()
}

// scheduleFallbackRefresh (re)arms the single debounced full-refetch
// timer. Bursts of unresolved push signals coalesce into one refetch.
func (en *Engine) scheduleFallbackRefresh() {
	en.cancelPendingRefreshLocked()
	en.refreshTimer = en.sched.Schedule(en.refreshDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := en.Refresh(ctx); err != nil {
			en.logger.Printf("Fallback refresh failed: %v", err)
		}
	})
}

// observeListLocked feeds a list response's revision counters through
// the tracker so a full refresh and concurrent deltas converge on the
// same maximum.
func (en *Engine) observeListLocked(combined int64, streamA, streamB *int64) {
	en.revs.Observe(combined)
	if streamA != nil {
		en.revs.ObserveStreamA(*streamA)
	}
	if streamB != nil {
		en.revs.ObserveStreamB(*streamB)
	}
}

func overlaps(e *entity.Entity, start, end time.Time) bool {
	entEnd := e.End
	if entEnd.IsZero() {
		entEnd = e.Start
	}
	return !entEnd.Before(start) && !e.Start.After(end)
}

func yearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func yearEnd(year int) time.Time {
	return time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
}

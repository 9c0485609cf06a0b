// Package engine is the heart of the almanac client: it keeps the
// local, year-partitioned cache of calendar entities and tasks
// consistent with the remote source of truth under three simultaneous
// pressures: user-initiated optimistic edits, the real-time push stream
// of remote changes, and periodic full resynchronization.
//
// The engine is an explicitly constructed instance with injected
// dependencies (transport, clock, scheduler); there are no ambient
// singletons. One mutex serializes every store mutation — the Go
// rendition of the source model where all state changes run to
// completion before the next queued callback. Remote I/O happens off
// the lock, and each completion revalidates against the per-key
// sequence number before committing.
package engine

import (
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/stormlight/almanac/internal/delta"
	"github.com/stormlight/almanac/internal/entity"
	"github.com/stormlight/almanac/internal/guard"
	"github.com/stormlight/almanac/internal/index"
	"github.com/stormlight/almanac/internal/partition"
	"github.com/stormlight/almanac/internal/remote"
	"github.com/stormlight/almanac/internal/revision"
	"github.com/stormlight/almanac/internal/task"
)

// DefaultRefreshDebounce is how long after the last unresolved push
// signal the fallback full refetch fires. Bursts coalesce into one.
const DefaultRefreshDebounce = 600 * time.Millisecond

// Options configures a new engine.
type Options struct {
	// Transport is the remote service. Required.
	Transport remote.Transport

	// Logger for engine activity. Nil means a default stderr logger.
	Logger *log.Logger

	// Now is the clock; nil means time.Now. Injected for tests.
	Now func() time.Time

	// Scheduler drives the debounced fallback refresh; nil means the
	// production timer-backed scheduler.
	Scheduler Scheduler

	// GuardWindow overrides the mutation guard suppression window.
	GuardWindow time.Duration

	// DedupCapacity overrides the push-operation dedup window size.
	DedupCapacity int

	// RefreshDebounce overrides the fallback refetch debounce delay.
	RefreshDebounce time.Duration
}

// Engine owns the partition store and every structure guarding it.
type Engine struct {
	mu sync.Mutex

	store    *partition.Store
	revs     *revision.Tracker
	guards   *guard.Registry
	dedup    *guard.DedupWindow
	pipeline *delta.Pipeline
	virtual  *task.Virtualizer

	transport remote.Transport
	now       func() time.Time
	sched     Scheduler
	logger    *log.Logger

	// seqs stamps each in-flight mutation per mutation key; a
	// completion whose stamp is no longer current has been superseded
	// and must be discarded.
	seqs map[entity.MutationKey]uint64

	visibleStart time.Time
	visibleEnd   time.Time
	tasksLoaded  bool

	loading   bool
	lastError string

	refreshDelay time.Duration
	refreshTimer Timer

	// onRefreshed fires after every successful full refresh, outside
	// the store lock. Used for best-effort snapshot persistence.
	onRefreshed func(Snapshot)
}

// New creates an engine over the given transport.
func New(opts Options) (*Engine, error) {
	if opts.Transport == nil {
		return nil, &Error{Code: CodeLoadFailed, Message: "transport cannot be nil"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = NewScheduler()
	}
	refreshDelay := opts.RefreshDebounce
	if refreshDelay <= 0 {
		refreshDelay = DefaultRefreshDebounce
	}

	store := partition.NewStore(entity.SourceEvent)
	revs := revision.NewTracker()
	guards := guard.NewRegistry(opts.GuardWindow, now)
	dedup := guard.NewDedupWindow(opts.DedupCapacity)
	virtual := task.NewVirtualizer(now)

	return &Engine{
		store:        store,
		revs:         revs,
		guards:       guards,
		dedup:        dedup,
		pipeline:     delta.NewPipeline(store, revs, guards, dedup, virtual, logger),
		virtual:      virtual,
		transport:    opts.Transport,
		now:          now,
		sched:        sched,
		logger:       logger,
		seqs:         make(map[entity.MutationKey]uint64),
		refreshDelay: refreshDelay,
	}, nil
}

// OnRefreshed registers a callback invoked with a fresh snapshot after
// every successful full refresh. Only one callback is supported.
func (en *Engine) OnRefreshed(fn func(Snapshot)) {
	en.mu.Lock()
	defer en.mu.Unlock()
	en.onRefreshed = fn
}

// Snapshot is the read-only state exposed to consumers.
type Snapshot struct {
	// Entities is the merged event view (active source tag).
	Entities []*entity.Entity

	// AllEntities is the merged view across every partition.
	AllEntities []*entity.Entity

	// Tasks is the derived task list, sorted by due date then title.
	Tasks []task.Task

	// Revisions are the current tracked revision counters.
	Revisions revision.Revisions

	// Loading reports an in-flight range load.
	Loading bool

	// LastError is the most recent surfaced failure, or "".
	LastError string
}

// Snapshot returns a copy of the current consumer-visible state.
func (en *Engine) Snapshot() Snapshot {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.snapshotLocked()
}

func (en *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Entities:    append([]*entity.Entity(nil), en.store.Merged()...),
		AllEntities: append([]*entity.Entity(nil), en.store.MergedAll()...),
		Tasks:       en.virtual.Tasks(en.store.MergedAll()),
		Revisions:   en.revs.Current(),
		Loading:     en.loading,
		LastError:   en.lastError,
	}
}

// EntitiesOn returns the entities whose date span covers the given day,
// gathered across every cached partition, in start order.
func (en *Engine) EntitiesOn(day time.Time) []*entity.Entity {
	en.mu.Lock()
	defer en.mu.Unlock()

	key := index.DateKeyFor(day)
	var out []*entity.Entity
	for _, pk := range en.store.Keys() {
		p := en.store.Get(pk)
		out = append(out, p.Index.ByDate[key]...)
	}
	sortByStart(out)
	return out
}

// EntitiesAtHour returns the entities starting in the given hour of the
// given day.
func (en *Engine) EntitiesAtHour(day time.Time, hour int) []*entity.Entity {
	en.mu.Lock()
	defer en.mu.Unlock()

	key := index.DateKeyFor(day)
	var out []*entity.Entity
	for _, pk := range en.store.Keys() {
		p := en.store.Get(pk)
		if hours := p.Index.ByHour[key]; hours != nil {
			out = append(out, hours[hour]...)
		}
	}
	sortByStart(out)
	return out
}

// Revisions returns the current tracked revision counters.
func (en *Engine) Revisions() revision.Revisions {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.revs.Current()
}

// Shutdown cancels any pending fallback refresh. Call when the push
// channel is torn down (for example on authorization change) so a
// stale timer does not fire into a re-arming engine.
func (en *Engine) Shutdown() {
	en.mu.Lock()
	defer en.mu.Unlock()
	en.cancelPendingRefreshLocked()
}

func (en *Engine) cancelPendingRefreshLocked() {
	if en.refreshTimer != nil {
		en.refreshTimer.Stop()
		en.refreshTimer = nil
	}
}

func sortByStart(list []*entity.Entity) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Start.Before(list[j].Start)
	})
}

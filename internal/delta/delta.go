// Package delta consumes push-channel messages and applies them to the
// partition store, guarded by the operation dedup window, the revision
// tracker, and the mutation guard registry.
//
// Every apply entry point returns whether the payload was handled. A
// false return is the caller's signal to schedule a debounced full
// refetch as a safety net; suppressed duplicates and stale echoes
// report true because no refetch is needed for them.
package delta

import (
	"encoding/json"
	"log"
	"os"

	"github.com/stormlight/almanac/internal/entity"
	"github.com/stormlight/almanac/internal/guard"
	"github.com/stormlight/almanac/internal/partition"
	"github.com/stormlight/almanac/internal/revision"
	"github.com/stormlight/almanac/internal/task"
)

// Action discriminates delta payloads.
type Action string

const (
	// ActionUpsert carries a full entity snapshot to install.
	ActionUpsert Action = "upsert"
	// ActionDelete carries identifier(s) of an entity to remove.
	ActionDelete Action = "delete"
)

// Payload is a single incremental change pushed by the remote service.
type Payload struct {
	Action   Action `json:"action"`
	OpID     string `json:"op_id,omitempty"`
	Revision *int64 `json:"revision,omitempty"`

	// Entity is the snapshot for upserts.
	Entity *entity.Entity `json:"entity,omitempty"`

	// RemoteID/ContainerID identify the target for deletes.
	RemoteID    string `json:"remote_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
}

// Batch is an envelope carrying several deltas.
type Batch struct {
	Deltas []Payload `json:"deltas"`
}

// TaskPayload is a task-scoped delta. Upserts carry the native task
// shape; deletes carry the task identifier.
type TaskPayload struct {
	Action   Action     `json:"action"`
	OpID     string     `json:"op_id,omitempty"`
	Revision *int64     `json:"revision,omitempty"`
	Task     *task.Task `json:"task,omitempty"`
	TaskID   string     `json:"task_id,omitempty"`
}

// Pipeline applies deltas to the store. It shares the guard registry
// and revision tracker with the optimistic mutation controller so both
// paths converge on the same state.
//
// Not safe for concurrent use; the owning engine serializes access.
type Pipeline struct {
	store   *partition.Store
	revs    *revision.Tracker
	guards  *guard.Registry
	dedup   *guard.DedupWindow
	virtual *task.Virtualizer
	logger  *log.Logger
}

// NewPipeline wires a pipeline over the engine's shared state.
// If logger is nil, a default logger writing to stderr is used.
func NewPipeline(store *partition.Store, revs *revision.Tracker, guards *guard.Registry,
	dedup *guard.DedupWindow, virtual *task.Virtualizer, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(os.Stderr, "[delta] ", log.LstdFlags)
	}
	return &Pipeline{
		store:   store,
		revs:    revs,
		guards:  guards,
		dedup:   dedup,
		virtual: virtual,
		logger:  logger,
	}
}

// Apply processes one delta payload. It returns true when the payload
// is fully handled, including the deliberate no-ops for re-delivered
// operations, stale echoes, and guard-suppressed snapshots.
func (p *Pipeline) Apply(pl Payload) bool {
	if pl.OpID != "" && p.dedup.Seen(pl.OpID) {
		p.logger.Printf("Duplicate op %s ignored", pl.OpID)
		return true
	}
	if pl.Revision != nil && p.revs.IsStale(*pl.Revision) {
		p.logger.Printf("Stale delta (rev %d) ignored", *pl.Revision)
		return true
	}

	switch pl.Action {
	case ActionUpsert:
		return p.applyUpsert(pl)
	case ActionDelete:
		return p.applyDelete(pl)
	default:
		p.logger.Printf("Unrecognized delta action %q", pl.Action)
		return false
	}
}

// ApplyBatch unwraps a batch envelope and processes each member
// independently. The batch counts as applied if any member applied.
func (p *Pipeline) ApplyBatch(b Batch) bool {
	applied := false
	for _, pl := range b.Deltas {
		if p.Apply(pl) {
			applied = true
		}
	}
	return applied
}

// ApplyTask processes a task-scoped delta by virtualizing the task
// into the shared entity shape and running the normal upsert/delete path.
func (p *Pipeline) ApplyTask(tp TaskPayload) bool {
	pl := Payload{
		Action:   tp.Action,
		OpID:     tp.OpID,
		Revision: tp.Revision,
	}
	switch tp.Action {
	case ActionUpsert:
		if tp.Task == nil || tp.Task.ID == "" {
			p.logger.Printf("Task upsert missing task snapshot")
			return false
		}
		pl.Entity = p.virtual.Virtualize(*tp.Task)
	case ActionDelete:
		if tp.TaskID == "" {
			p.logger.Printf("Task delete missing task id")
			return false
		}
		pl.RemoteID = tp.TaskID
	default:
		p.logger.Printf("Unrecognized task delta action %q", tp.Action)
		return false
	}
	return p.Apply(pl)
}

// Decode entry points for raw push-channel frames. A decode failure is
// reported as not applied so the caller schedules the fallback refetch.

// DecodeAndApply decodes a single raw delta frame and applies it.
func (p *Pipeline) DecodeAndApply(data []byte) bool {
	var pl Payload
	if err := json.Unmarshal(data, &pl); err != nil {
		p.logger.Printf("Failed to decode delta: %v", err)
		return false
	}
	return p.Apply(pl)
}

// DecodeAndApplyBatch decodes a raw batch frame and applies its members.
func (p *Pipeline) DecodeAndApplyBatch(data []byte) bool {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		p.logger.Printf("Failed to decode delta batch: %v", err)
		return false
	}
	if len(b.Deltas) == 0 {
		return false
	}
	return p.ApplyBatch(b)
}

// DecodeAndApplyTask decodes a raw task delta frame and applies it.
func (p *Pipeline) DecodeAndApplyTask(data []byte) bool {
	var tp TaskPayload
	if err := json.Unmarshal(data, &tp); err != nil {
		p.logger.Printf("Failed to decode task delta: %v", err)
		return false
	}
	return p.ApplyTask(tp)
}

// applyUpsert normalizes the inbound snapshot, resolves it against the
// mutation guard registry, replaces any representation of the same
// remote entity, and installs the snapshot in its year partition.
func (p *Pipeline) applyUpsert(pl Payload) bool {
	if pl.Entity == nil {
		p.logger.Printf("Upsert delta missing entity snapshot")
		return false
	}

	e := entity.Normalize(pl.Entity)
	if err := e.Validate(); err != nil {
		p.logger.Printf("Upsert delta rejected: %v", err)
		return false
	}

	key := e.MutationKey()
	if p.guards.Resolve(string(key), e.Fingerprint()) == guard.Suppress {
		// A local optimistic write for this key is newer than whatever
		// produced this snapshot; swallow it rather than flicker back.
		p.logger.Printf("Delta for %s suppressed by mutation guard", key)
		return true
	}

	p.store.RemoveMatching(e.Ref())
	p.store.Insert(e)
	if pl.Revision != nil {
		p.revs.Observe(*pl.Revision)
	}
	return true
}

// applyDelete removes every cached representation of the target entity.
func (p *Pipeline) applyDelete(pl Payload) bool {
	remoteID := pl.RemoteID
	container := pl.ContainerID
	if remoteID == "" && pl.Entity != nil {
		remoteID = pl.Entity.RemoteID
		container = pl.Entity.ContainerID
	}
	if remoteID == "" {
		p.logger.Printf("Delete delta missing target identifier")
		return false
	}

	ref := entity.RemoteRef(container, remoteID)
	removed := p.store.RemoveMatching(ref)
	for _, e := range removed {
		p.virtual.Forget(e.ID)
	}
	if pl.Revision != nil {
		p.revs.Observe(*pl.Revision)
	}
	return true
}

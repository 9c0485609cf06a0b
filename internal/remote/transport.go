// Package remote defines the shape of the remote calendar service as
// consumed by the sync engine: request/response mutation endpoints plus
// result envelopes carrying server revision counters.
//
// The engine only depends on the Transport interface; Client is the
// production HTTP implementation and tests substitute fakes.
package remote

import (
	"context"
	"time"

	"github.com/stormlight/almanac/internal/entity"
	"github.com/stormlight/almanac/internal/task"
)

// ListResult is the response envelope for a range fetch.
type ListResult struct {
	Items []*entity.Entity `json:"items"`

	// Revision is the combined revision counter at fetch time.
	Revision int64 `json:"revision"`

	// Per-stream revisions are optional; servers that do not split
	// streams omit them.
	StreamARevision *int64 `json:"stream_a_revision,omitempty"`
	StreamBRevision *int64 `json:"stream_b_revision,omitempty"`
}

// CreateResult is the response envelope for an entity create.
type CreateResult struct {
	Entity      *entity.Entity `json:"entity"`
	NewRevision *int64         `json:"new_revision,omitempty"`
}

// MutateResult is the response envelope for update/delete calls.
type MutateResult struct {
	OK          bool   `json:"ok"`
	NewRevision *int64 `json:"new_revision,omitempty"`
}

// TaskListResult is the response envelope for a task list fetch.
type TaskListResult struct {
	Items    []task.Task `json:"items"`
	Revision int64       `json:"revision"`
}

// TaskResult is the response envelope for a task create.
type TaskResult struct {
	Task        task.Task `json:"task"`
	NewRevision *int64    `json:"new_revision,omitempty"`
}

// Transport is the remote service as seen by the sync engine.
//
// All calls are blocking and honor context cancellation. Implementations
// must be safe for concurrent use: the engine issues mutations without
// holding its store lock.
type Transport interface {
	// ListEntities fetches every entity overlapping [rangeStart, rangeEnd].
	ListEntities(ctx context.Context, rangeStart, rangeEnd time.Time) (*ListResult, error)

	// CreateEntity creates an entity remotely and returns the
	// authoritative copy with its remote-assigned identifier.
	CreateEntity(ctx context.Context, e *entity.Entity) (*CreateResult, error)

	// UpdateEntity applies a partial update to the referenced entity.
	UpdateEntity(ctx context.Context, ref entity.Ref, patch entity.Patch) (*MutateResult, error)

	// DeleteEntity removes the referenced entity remotely.
	DeleteEntity(ctx context.Context, ref entity.Ref) (*MutateResult, error)

	// ListTasks fetches all open and recently-completed tasks.
	ListTasks(ctx context.Context) (*TaskListResult, error)

	// CreateTask creates a task remotely.
	CreateTask(ctx context.Context, t task.Task) (*TaskResult, error)

	// UpdateTask replaces the task with the given original task ID.
	UpdateTask(ctx context.Context, taskID string, t task.Task) (*MutateResult, error)

	// DeleteTask removes the task with the given original task ID.
	DeleteTask(ctx context.Context, taskID string) (*MutateResult, error)
}

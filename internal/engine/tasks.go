package engine

import (
	"context"
	"fmt"

	"github.com/stormlight/almanac/internal/entity"
	"github.com/stormlight/almanac/internal/task"
)

// Task mutations follow the same optimistic choreography as entity
// mutations: the virtualized shape is written to the partition store
// immediately, the remote call is issued against the original task
// identifier, and the completion reconciles or rolls back.

// CreateTask creates a task optimistically and remotely.
func (en *Engine) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	provisional := t
	provisional.ID = entity.NewLocalID()

	en.mu.Lock()
	provEntity := en.virtual.Virtualize(provisional)
	en.store.Insert(provEntity)
	en.mu.Unlock()

	res, err := en.transport.CreateTask(ctx, t)

	en.mu.Lock()
	defer en.mu.Unlock()

	en.store.Remove(provEntity.ID)
	en.virtual.Forget(provEntity.ID)

	if err != nil {
		en.lastError = err.Error()
		en.logger.Printf("Task create failed: %v", err)
		return task.Task{}, newError(CodeCreateFailed, err)
	}

	authoritative := en.virtual.Virtualize(res.Task)
	en.store.RemoveMatching(authoritative.Ref())
	en.store.Insert(authoritative)

	if res.NewRevision != nil {
		en.revs.Observe(*res.NewRevision)
	}
	en.lastError = ""
	return res.Task, nil
}

// UpdateTask replaces a task optimistically and remotely. Supersession
// works exactly as for entity updates: only the latest in-flight update
// per task may commit its completion.
func (en *Engine) UpdateTask(ctx context.Context, taskID string, t task.Task) error {
	en.mu.Lock()

	orig := en.store.Find(taskID)
	if orig == nil {
		en.mu.Unlock()
		return &Error{Code: CodeUpdateFailed, Message: fmt.Sprintf("task %s not cached", taskID)}
	}
	original := orig.Clone()

	t.ID = taskID
	optimistic := en.virtual.Virtualize(t)

	en.store.Remove(original.ID)
	en.store.Insert(optimistic)

	key := optimistic.MutationKey()
	en.guards.Register(string(key), optimistic.Fingerprint())
	en.seqs[key]++
	seq := en.seqs[key]

	en.mu.Unlock()

	res, err := en.transport.UpdateTask(ctx, taskID, t)

	en.mu.Lock()
	defer en.mu.Unlock()

	if en.seqs[key] != seq {
		en.logger.Printf("Task update for %s superseded, completion discarded", key)
		return nil
	}

	if err != nil {
		en.store.Remove(optimistic.ID)
		en.store.Insert(original)
		en.guards.Clear(string(key))
		en.lastError = err.Error()
		en.logger.Printf("Task update failed, rolled back: %v", err)
		return newError(CodeUpdateFailed, err)
	}

	if res != nil && res.NewRevision != nil {
		en.revs.Observe(*res.NewRevision)
	}
	en.lastError = ""
	return nil
}

// CompleteTask is the UpdateTask shorthand consumers reach for most.
func (en *Engine) CompleteTask(ctx context.Context, taskID string, completed bool) error {
	en.mu.Lock()
	var current task.Task
	found := false
	for _, t := range en.virtual.Tasks(en.store.MergedAll()) {
		if t.ID == taskID {
			current = t
			found = true
			break
		}
	}
	en.mu.Unlock()

	if !found {
		return &Error{Code: CodeUpdateFailed, Message: fmt.Sprintf("task %s not cached", taskID)}
	}
	current.Completed = completed
	return en.UpdateTask(ctx, taskID, current)
}

// DeleteTask removes a task optimistically and remotely.
func (en *Engine) DeleteTask(ctx context.Context, taskID string) error {
	en.mu.Lock()
	removed := en.store.Remove(taskID)
	if removed == nil {
		en.mu.Unlock()
		return &Error{Code: CodeDeleteFailed, Message: fmt.Sprintf("task %s not cached", taskID)}
	}
	en.mu.Unlock()

	res, err := en.transport.DeleteTask(ctx, taskID)

	en.mu.Lock()
	defer en.mu.Unlock()

	if err != nil {
		en.store.Insert(removed)
		en.lastError = err.Error()
		en.logger.Printf("Task delete failed, reinserted: %v", err)
		return newError(CodeDeleteFailed, err)
	}

	if res != nil && res.NewRevision != nil {
		en.revs.Observe(*res.NewRevision)
	}
	en.virtual.Forget(removed.ID)
	en.lastError = ""
	return nil
}

// Tasks returns the derived task list.
func (en *Engine) Tasks() []task.Task {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.virtual.Tasks(en.store.MergedAll())
}

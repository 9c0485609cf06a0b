package engine

import (
	"context"
	"fmt"

	"github.com/stormlight/almanac/internal/entity"
)

// Create writes a provisional entity immediately, issues the remote
// create, and reconciles on completion. On success the provisional
// entity is replaced by the authoritative copy under its remote-assigned
// identifier; on failure the provisional entity is removed and no trace
// is left.
func (en *Engine) Create(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	provisional := e.Clone()
	provisional.ID = entity.NewLocalID()
	provisional.RemoteID = ""
	if provisional.Source == "" {
		provisional.Source = entity.SourceEvent
	}
	if provisional.End.IsZero() {
		provisional.End = provisional.Start
	}

	en.mu.Lock()
	en.store.Insert(provisional)
	en.mu.Unlock()

	res, err := en.transport.CreateEntity(ctx, e)

	en.mu.Lock()
	defer en.mu.Unlock()

	en.store.Remove(provisional.ID)

	if err != nil {
		en.lastError = err.Error()
		en.logger.Printf("Create failed: %v", err)
		return nil, newError(CodeCreateFailed, err)
	}
	if res.Entity == nil {
		en.lastError = "create returned no entity"
		return nil, &Error{Code: CodeCreateFailed, Message: "create returned no entity"}
	}

	authoritative := entity.Normalize(res.Entity)

	// A push delta for the new entity may have won the race and landed
	// before this completion; purge any copy under the new remote ID so
	// the merged view never holds it twice.
	en.store.RemoveMatching(authoritative.Ref())
	en.store.Insert(authoritative)

	if res.NewRevision != nil {
		en.revs.Observe(*res.NewRevision)
	}
	en.lastError = ""
	return authoritative, nil
}

// CreateRecurring is Create with a recurrence rule attached.
func (en *Engine) CreateRecurring(ctx context.Context, e *entity.Entity, rule string) (*entity.Entity, error) {
	c := e.Clone()
	c.Recurrence = rule
	return en.Create(ctx, c)
}

// Update applies the patch optimistically, issues the remote update,
// and reconciles on completion.
//
// Each update against a given mutation key is stamped with an
// increasing sequence number at issue time. If a newer update for the
// same key is issued while this one is in flight, this completion —
// success or failure — is discarded entirely (no write, no rollback)
// so it cannot clobber the newer edit.
func (en *Engine) Update(ctx context.Context, id string, patch entity.Patch) error {
	en.mu.Lock()

	orig := en.store.Find(id)
	if orig == nil {
		en.mu.Unlock()
		return &Error{Code: CodeUpdateFailed, Message: fmt.Sprintf("entity %s not cached", id)}
	}
	original := orig.Clone()
	optimistic := patch.Apply(orig)

	// Remove-then-reinsert: a moved start may change the year
	// partition and always changes index placement.
	en.store.Remove(original.ID)
	en.store.Insert(optimistic)

	key := optimistic.MutationKey()
	en.guards.Register(string(key), optimistic.Fingerprint())
	en.seqs[key]++
	seq := en.seqs[key]
	ref := original.Ref()

	en.mu.Unlock()

	res, err := en.transport.UpdateEntity(ctx, ref, patch)

	en.mu.Lock()
	defer en.mu.Unlock()

	if en.seqs[key] != seq {
		// Superseded in flight by a newer edit; discard this completion.
		en.logger.Printf("Update for %s superseded, completion discarded", key)
		return nil
	}

	if err != nil {
		en.store.Remove(optimistic.ID)
		en.store.Insert(original)
		en.guards.Clear(string(key))
		en.lastError = err.Error()
		en.logger.Printf("Update failed, rolled back: %v", err)
		return newError(CodeUpdateFailed, err)
	}

	if res != nil && res.NewRevision != nil {
		en.revs.Observe(*res.NewRevision)
	}
	en.lastError = ""
	return nil
}

// UpdateRecurring is Update with a recurrence rule included in the patch.
func (en *Engine) UpdateRecurring(ctx context.Context, id string, patch entity.Patch, rule string) error {
	patch.Recurrence = &rule
	return en.Update(ctx, id, patch)
}

// Remove deletes the entity locally at once, issues the remote delete,
// and reinserts the original on failure.
func (en *Engine) Remove(ctx context.Context, id string) error {
	en.mu.Lock()
	removed := en.store.Remove(id)
	if removed == nil {
		en.mu.Unlock()
		return &Error{Code: CodeDeleteFailed, Message: fmt.Sprintf("entity %s not cached", id)}
	}
	ref := removed.Ref()
	en.mu.Unlock()

	res, err := en.transport.DeleteEntity(ctx, ref)

	en.mu.Lock()
	defer en.mu.Unlock()

	if err != nil {
		en.store.Insert(removed)
		en.lastError = err.Error()
		en.logger.Printf("Delete failed, reinserted: %v", err)
		return newError(CodeDeleteFailed, err)
	}

	if res != nil && res.NewRevision != nil {
		en.revs.Observe(*res.NewRevision)
	}
	en.virtual.Forget(removed.ID)
	en.lastError = ""
	return nil
}

// RemoveByIDs drops entities from the local cache without any remote
// call. Consumers use it to clear entries the server already confirmed
// gone through another channel.
func (en *Engine) RemoveByIDs(ids []string) {
	en.mu.Lock()
	defer en.mu.Unlock()
	for _, id := range ids {
		if removed := en.store.Remove(id); removed != nil {
			en.virtual.Forget(removed.ID)
		}
	}
}

package entity

import "strings"

// PartitionKey identifies a year-scoped partition of cached entities.
// Value type with structural equality; safe for use as a map key.
type PartitionKey struct {
	Source SourceTag
	Year   int
}

// MutationKey correlates an optimistic local edit with its remote echo.
type MutationKey string

// compositeSep joins a container ID with a remote ID into one identifier.
const compositeSep = "::"

// Ref is a tagged-union identifier for an entity: either a local temp ID
// (provisional, not yet acknowledged remotely) or a remote identifier
// with an optional container (e.g. calendar) ID.
type Ref struct {
	local     string
	container string
	remote    string
}

// LocalRef builds a reference to a provisional, locally-created entity.
func LocalRef(id string) Ref {
	return Ref{local: id}
}

// RemoteRef builds a reference to a remotely-known entity. container may
// be empty when the remote service does not scope entities to containers.
func RemoteRef(container, remoteID string) Ref {
	return Ref{container: container, remote: remoteID}
}

// ParseID is the single normalization point for raw identifier strings.
// It understands bare remote IDs, composite container::id forms, and
// local temp IDs.
func ParseID(raw string) Ref {
	if strings.HasPrefix(raw, localIDPrefix) {
		return LocalRef(raw)
	}
	if i := strings.Index(raw, compositeSep); i >= 0 {
		return RemoteRef(raw[:i], raw[i+len(compositeSep):])
	}
	return RemoteRef("", raw)
}

// IsLocal reports whether the reference points at a provisional entity.
func (r Ref) IsLocal() bool {
	return r.local != ""
}

// RemoteID returns the bare remote identifier, or "" for local refs.
func (r Ref) RemoteID() string {
	return r.remote
}

// Container returns the container ID, or "" when absent.
func (r Ref) Container() string {
	return r.container
}

// ID returns the canonical cache identifier for this reference:
// the local temp ID, the composite container::id, or the bare remote ID.
func (r Ref) ID() string {
	if r.local != "" {
		return r.local
	}
	if r.container != "" {
		return r.container + compositeSep + r.remote
	}
	return r.remote
}

// Matches reports whether a cached entity identifier refers to the same
// logical entity as this reference. A remote ref matches the bare ID,
// any composite form carrying the same remote ID, and (for robustness
// against container drift) any ID with a ::remoteID suffix.
func (r Ref) Matches(cachedID string) bool {
	if r.local != "" {
		return cachedID == r.local
	}
	if cachedID == r.remote {
		return true
	}
	if cachedID == r.ID() {
		return true
	}
	return strings.HasSuffix(cachedID, compositeSep+r.remote)
}

// MutationKey returns the normalized mutation key for this reference.
func (r Ref) MutationKey() MutationKey {
	if r.remote != "" {
		return MutationKey(r.remote)
	}
	return MutationKey(r.local)
}

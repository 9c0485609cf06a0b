// Package guard protects very recent optimistic local writes from being
// clobbered by stale pushed state.
//
// A mutation guard is a short-lived, per-mutation-key record of "this
// entity was just changed locally". While a guard is live, an inbound
// delta for the same key is only allowed through if its content
// fingerprint matches the optimistic value (the delta is the echo of
// our own write); a mismatching delta inside the window is presumed to
// be a stale, out-of-order echo and is suppressed.
package guard

import "time"

// DefaultWindow is how long a guard suppresses mismatching deltas.
const DefaultWindow = 5000 * time.Millisecond

// Decision is the outcome of resolving an inbound delta against the
// guard registry.
type Decision int

const (
	// Apply means no live guard blocks the delta; apply it normally.
	Apply Decision = iota
	// Suppress means a live guard with a different fingerprint exists;
	// the delta must be swallowed without touching local state.
	Suppress
)

type guardEntry struct {
	registeredAt time.Time
	fingerprint  string
}

// Registry holds the live mutation guards.
//
// Not safe for concurrent use; the owning engine serializes access.
type Registry struct {
	window  time.Duration
	entries map[string]guardEntry

	// now is injectable for deterministic tests; nil means time.Now.
	now func() time.Time
}

// NewRegistry returns a registry with the given suppression window.
// A zero window means DefaultWindow. now may be nil.
func NewRegistry(window time.Duration, now func() time.Time) *Registry {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		window:  window,
		entries: make(map[string]guardEntry),
		now:     now,
	}
}

// Register installs or refreshes the guard for a mutation key with the
// fingerprint of the optimistic value just written locally.
func (r *Registry) Register(key, fingerprint string) {
	r.entries[key] = guardEntry{
		registeredAt: r.now(),
		fingerprint:  fingerprint,
	}
}

// Clear drops the guard for the key, if any.
func (r *Registry) Clear(key string) {
	delete(r.entries, key)
}

// Resolve decides the fate of an inbound delta for the key carrying the
// given fingerprint. Expired guards are discarded and the delta applies;
// a matching fingerprint clears the guard (the delta is our own echo)
// and applies; a mismatch within the window suppresses.
func (r *Registry) Resolve(key, fingerprint string) Decision {
	entry, ok := r.entries[key]
	if !ok {
		return Apply
	}
	if r.now().Sub(entry.registeredAt) > r.window {
		delete(r.entries, key)
		return Apply
	}
	if entry.fingerprint == fingerprint {
		delete(r.entries, key)
		return Apply
	}
	return Suppress
}

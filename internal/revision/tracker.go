// Package revision tracks the server-issued monotonic revision counters
// the sync engine uses to detect stale pushed state.
//
// Three counters are kept: the combined revision plus one per entity
// stream (events and tasks). Counters only ever move upward; a payload
// carrying a lower revision is informational and never overwrites live
// state.
package revision

// Revisions is a snapshot of the three tracked counters.
type Revisions struct {
	Combined int64 `json:"combined"`
	StreamA  int64 `json:"stream_a"`
	StreamB  int64 `json:"stream_b"`
}

// Tracker holds the monotonic revision state.
type Tracker struct {
	current Revisions
}

// NewTracker returns a tracker with all counters at zero.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe raises the combined counter if the candidate is strictly
// greater than the current value. Lower or equal candidates are ignored.
func (t *Tracker) Observe(candidate int64) {
	if candidate > t.current.Combined {
		t.current.Combined = candidate
	}
}

// ObserveStreamA raises the stream-A counter to max(current, candidate).
func (t *Tracker) ObserveStreamA(candidate int64) {
	if candidate > t.current.StreamA {
		t.current.StreamA = candidate
	}
}

// ObserveStreamB raises the stream-B counter to max(current, candidate).
func (t *Tracker) ObserveStreamB(candidate int64) {
	if candidate > t.current.StreamB {
		t.current.StreamB = candidate
	}
}

// IsStale reports whether a candidate combined revision is at or below
// the tracked combined revision, meaning its effects are already
// reflected in local state.
func (t *Tracker) IsStale(candidate int64) bool {
	return candidate <= t.current.Combined
}

// Current returns a copy of the tracked counters.
func (t *Tracker) Current() Revisions {
	return t.current
}

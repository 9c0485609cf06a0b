package guard

// DefaultDedupCapacity bounds the operation dedup window.
const DefaultDedupCapacity = 1000

// DedupWindow is a bounded FIFO set of recently-seen push operation
// identifiers. Re-delivered operations are detected by membership;
// once the window exceeds capacity the oldest entries are evicted.
//
// Not safe for concurrent use; the owning engine serializes access.
type DedupWindow struct {
	capacity int
	seen     map[string]struct{}
	order    []string
}

// NewDedupWindow returns a window holding at most capacity entries.
// A non-positive capacity means DefaultDedupCapacity.
func NewDedupWindow(capacity int) *DedupWindow {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupWindow{
		capacity: capacity,
		seen:     make(map[string]struct{}),
	}
}

// Seen reports whether the operation ID was already recorded. Unseen
// IDs are recorded on the way through, evicting oldest-first when the
// window is full.
func (w *DedupWindow) Seen(opID string) bool {
	if _, ok := w.seen[opID]; ok {
		return true
	}
	w.seen[opID] = struct{}{}
	w.order = append(w.order, opID)
	for len(w.order) > w.capacity {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}
	return false
}

// Len returns the number of operation IDs currently tracked.
func (w *DedupWindow) Len() int {
	return len(w.order)
}

package guard

import (
	"testing"
	"time"
)

// fakeClock drives the registry deterministically.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestResolveWithoutGuardApplies(t *testing.T) {
	r := NewRegistry(0, nil)
	if got := r.Resolve("k", "fp"); got != Apply {
		t.Errorf("Resolve = %v, want Apply when no guard is live", got)
	}
}

func TestMismatchInsideWindowSuppresses(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(0, clock.now)

	r.Register("k", "fp-local")
	clock.advance(time.Millisecond)

	if got := r.Resolve("k", "fp-other"); got != Suppress {
		t.Errorf("Resolve = %v, want Suppress 1ms into the window", got)
	}

	clock.advance(4998 * time.Millisecond) // now at T+4999ms
	if got := r.Resolve("k", "fp-other"); got != Suppress {
		t.Errorf("Resolve = %v, want Suppress at 4999ms", got)
	}
}

func TestExpiredGuardAppliesRegardlessOfFingerprint(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(0, clock.now)

	r.Register("k", "fp-local")
	clock.advance(5001 * time.Millisecond)

	if got := r.Resolve("k", "fp-other"); got != Apply {
		t.Errorf("Resolve = %v, want Apply past the window", got)
	}
	// The expired guard must be gone entirely.
	if got := r.Resolve("k", "fp-other"); got != Apply {
		t.Errorf("Resolve = %v, want Apply after guard discarded", got)
	}
}

func TestMatchingFingerprintClearsGuardAndApplies(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(0, clock.now)

	r.Register("k", "fp-local")
	clock.advance(200 * time.Millisecond)

	if got := r.Resolve("k", "fp-local"); got != Apply {
		t.Fatalf("Resolve = %v, want Apply for matching echo", got)
	}
	// Guard is cleared: a later mismatch no longer suppresses.
	if got := r.Resolve("k", "fp-other"); got != Apply {
		t.Errorf("Resolve = %v, want Apply after guard cleared", got)
	}
}

func TestRegisterRefreshesWindow(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(0, clock.now)

	r.Register("k", "fp-1")
	clock.advance(4 * time.Second)
	r.Register("k", "fp-2")
	clock.advance(2 * time.Second) // 6s after first, 2s after refresh

	if got := r.Resolve("k", "fp-other"); got != Suppress {
		t.Errorf("Resolve = %v, want Suppress inside refreshed window", got)
	}
}

func TestClear(t *testing.T) {
	r := NewRegistry(0, nil)
	r.Register("k", "fp")
	r.Clear("k")
	if got := r.Resolve("k", "other"); got != Apply {
		t.Errorf("Resolve = %v, want Apply after Clear", got)
	}
}

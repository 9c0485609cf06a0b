package guard

import (
	"fmt"
	"testing"
)

func TestSeenRecordsFirstSight(t *testing.T) {
	w := NewDedupWindow(0)

	if w.Seen("op-1") {
		t.Error("first sight must report unseen")
	}
	if !w.Seen("op-1") {
		t.Error("second sight must report seen")
	}
}

func TestEvictionIsOldestFirst(t *testing.T) {
	w := NewDedupWindow(3)

	for i := 0; i < 4; i++ {
		w.Seen(fmt.Sprintf("op-%d", i))
	}

	if w.Len() != 3 {
		t.Fatalf("Len = %d, want capacity 3", w.Len())
	}
	// op-0 was evicted, so it reads as unseen again.
	if w.Seen("op-0") {
		t.Error("evicted id must read as unseen")
	}
	if !w.Seen("op-3") {
		t.Error("recent id must still be tracked")
	}
}

func TestDefaultCapacity(t *testing.T) {
	w := NewDedupWindow(-5)
	for i := 0; i < DefaultDedupCapacity+10; i++ {
		w.Seen(fmt.Sprintf("op-%d", i))
	}
	if w.Len() != DefaultDedupCapacity {
		t.Errorf("Len = %d, want %d", w.Len(), DefaultDedupCapacity)
	}
}

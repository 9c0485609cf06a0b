package entity

import (
	"strings"
	"testing"
	"time"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantLocal bool
		container string
		remote    string
	}{
		{"bare remote id", "ev-123", false, "", "ev-123"},
		{"composite id", "cal-1::ev-123", false, "cal-1", "ev-123"},
		{"local temp id", "local-abc", true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := ParseID(tt.raw)
			if ref.IsLocal() != tt.wantLocal {
				t.Fatalf("IsLocal() = %v, want %v", ref.IsLocal(), tt.wantLocal)
			}
			if ref.Container() != tt.container {
				t.Errorf("Container() = %q, want %q", ref.Container(), tt.container)
			}
			if !tt.wantLocal && ref.RemoteID() != tt.remote {
				t.Errorf("RemoteID() = %q, want %q", ref.RemoteID(), tt.remote)
			}
			if ref.ID() != tt.raw {
				t.Errorf("ID() = %q, want round trip %q", ref.ID(), tt.raw)
			}
		})
	}
}

func TestRefMatchesAllRepresentations(t *testing.T) {
	ref := RemoteRef("cal-1", "ev-123")

	for _, id := range []string{"ev-123", "cal-1::ev-123", "other::ev-123"} {
		if !ref.Matches(id) {
			t.Errorf("ref should match cached id %q", id)
		}
	}
	for _, id := range []string{"ev-1234", "cal-1::ev-999", "local-ev-123x"} {
		if ref.Matches(id) {
			t.Errorf("ref should not match cached id %q", id)
		}
	}
}

func TestLocalRefMatchesExactOnly(t *testing.T) {
	id := NewLocalID()
	ref := LocalRef(id)
	if !ref.Matches(id) {
		t.Error("local ref should match its own id")
	}
	if ref.Matches("ev-123") {
		t.Error("local ref should not match remote ids")
	}
}

func TestNewLocalIDIsUniqueAndTagged(t *testing.T) {
	a, b := NewLocalID(), NewLocalID()
	if a == b {
		t.Error("local ids should be unique")
	}
	if !strings.HasPrefix(a, "local-") {
		t.Errorf("local id %q missing prefix", a)
	}
	if !ParseID(a).IsLocal() {
		t.Error("minted local id should parse as local")
	}
}

func TestFingerprintTracksMutableFieldsOnly(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	a := &Entity{ID: "local-1", Source: SourceEvent, Start: start, End: start, Title: "A"}
	b := &Entity{ID: "cal-1::ev-9", RemoteID: "ev-9", ContainerID: "cal-1", Source: SourceEvent, Start: start, End: start, Title: "A"}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identity fields must not influence the fingerprint")
	}

	c := b.Clone()
	c.Title = "B"
	if b.Fingerprint() == c.Fingerprint() {
		t.Error("changed title must change the fingerprint")
	}
}

func TestPatchApplyPreservesUnsetFields(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	orig := &Entity{
		ID:       "ev-1",
		RemoteID: "ev-1",
		Source:   SourceEvent,
		Start:    start,
		End:      start.Add(time.Hour),
		Title:    "Standup",
		Location: "Room 4",
	}

	title := "Planning"
	got := Patch{Title: &title}.Apply(orig)

	if got.Title != "Planning" {
		t.Errorf("Title = %q, want %q", got.Title, "Planning")
	}
	if got.Location != "Room 4" {
		t.Errorf("Location = %q, want preserved %q", got.Location, "Room 4")
	}
	if !got.Start.Equal(start) {
		t.Errorf("Start changed: %v", got.Start)
	}
	if orig.Title != "Standup" {
		t.Error("Apply must not mutate the original")
	}
}

func TestNormalizeComposesIDAndDefaults(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	in := &Entity{RemoteID: "ev-9", ContainerID: "cal-1", Start: start}

	got := Normalize(in)

	if got.ID != "cal-1::ev-9" {
		t.Errorf("ID = %q, want composite", got.ID)
	}
	if got.Source != SourceEvent {
		t.Errorf("Source = %q, want default event", got.Source)
	}
	if !got.End.Equal(start) {
		t.Errorf("End = %v, want collapsed to start", got.End)
	}
	if in.ID != "" {
		t.Error("Normalize must not mutate its input")
	}
}

func TestMutationKeyPrefersRemoteID(t *testing.T) {
	e := &Entity{ID: "cal-1::ev-9", RemoteID: "ev-9", Source: SourceEvent, Start: time.Now()}
	if e.MutationKey() != MutationKey("ev-9") {
		t.Errorf("MutationKey = %q, want ev-9", e.MutationKey())
	}

	local := &Entity{ID: "local-1", Source: SourceEvent, Start: time.Now()}
	if local.MutationKey() != MutationKey("local-1") {
		t.Errorf("MutationKey = %q, want local-1", local.MutationKey())
	}
}

func TestPartitionKeyFromStartYear(t *testing.T) {
	e := &Entity{ID: "ev-1", Source: SourceEvent, Start: time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC)}
	want := PartitionKey{Source: SourceEvent, Year: 2025}
	if e.PartitionKey() != want {
		t.Errorf("PartitionKey = %+v, want %+v", e.PartitionKey(), want)
	}
}

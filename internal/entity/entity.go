// Package entity defines the calendar entity model shared by every layer
// of the sync engine.
//
// An Entity is either a calendar event or a task virtualized into the
// event shape. Both kinds live in the same partition store and temporal
// indexes; the Source tag tells them apart.
package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceTag identifies which upstream collection an entity came from.
type SourceTag string

const (
	// SourceEvent marks a native calendar event.
	SourceEvent SourceTag = "event"

	// SourceTask marks a task projected into the calendar entity shape.
	SourceTask SourceTag = "task"
)

// Entity is a single calendar item in the local cache.
//
// ID is unique within the merged view. For authoritative entities it is
// the composite remote identifier (container::remoteID, or the bare
// remote ID when there is no container). For provisional entities it is
// a local temp ID minted by NewLocalID.
type Entity struct {
	// ===== Identity =====
	ID          string    `json:"id"`
	RemoteID    string    `json:"remote_id,omitempty"`
	ContainerID string    `json:"container_id,omitempty"`
	Source      SourceTag `json:"source"`

	// ===== Time placement =====
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`

	// ===== Descriptive fields =====
	Title        string   `json:"title,omitempty"`
	Location     string   `json:"location,omitempty"`
	Description  string   `json:"description,omitempty"`
	Attendees    []string `json:"attendees,omitempty"`
	Reminders    []int    `json:"reminders,omitempty"` // minutes before start
	Visibility   string   `json:"visibility,omitempty"`
	Transparency string   `json:"transparency,omitempty"` // busy or free
	Timezone     string   `json:"timezone,omitempty"`
	Color        string   `json:"color,omitempty"`
	Recurrence   string   `json:"recurrence,omitempty"`
	MeetingLink  string   `json:"meeting_link,omitempty"`

	// ===== Task-only fields =====
	Completed bool   `json:"completed,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// localIDPrefix marks identifiers minted locally for provisional entities.
const localIDPrefix = "local-"

// NewLocalID mints a temporary identifier for a provisional entity that
// has not yet been acknowledged by the remote service.
func NewLocalID() string {
	return localIDPrefix + uuid.NewString()
}

// Validate checks that the entity has the minimum required fields.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Source == "" {
		return fmt.Errorf("source is required")
	}
	if e.Start.IsZero() {
		return fmt.Errorf("start is required")
	}
	return nil
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	c := *e
	if e.Attendees != nil {
		c.Attendees = append([]string(nil), e.Attendees...)
	}
	if e.Reminders != nil {
		c.Reminders = append([]int(nil), e.Reminders...)
	}
	return &c
}

// PartitionKey returns the year partition this entity belongs to,
// derived from its source tag and start year.
func (e *Entity) PartitionKey() PartitionKey {
	return PartitionKey{Source: e.Source, Year: e.Start.Year()}
}

// Ref returns the normalized identifier reference for this entity.
func (e *Entity) Ref() Ref {
	if e.RemoteID != "" {
		return RemoteRef(e.ContainerID, e.RemoteID)
	}
	return LocalRef(e.ID)
}

// Fingerprint returns a stable serialization of all mutable fields,
// used to correlate an optimistic local write with its remote echo.
// Identity fields are deliberately excluded so a provisional entity
// and its authoritative echo fingerprint identically.
func (e *Entity) Fingerprint() string {
	fp := struct {
		Start        int64    `json:"s"`
		End          int64    `json:"e"`
		AllDay       bool     `json:"ad"`
		Title        string   `json:"t"`
		Location     string   `json:"l"`
		Description  string   `json:"d"`
		Attendees    []string `json:"at"`
		Reminders    []int    `json:"r"`
		Visibility   string   `json:"v"`
		Transparency string   `json:"tr"`
		Timezone     string   `json:"tz"`
		Color        string   `json:"c"`
		Recurrence   string   `json:"rr"`
		MeetingLink  string   `json:"m"`
		Completed    bool     `json:"cp"`
		Notes        string   `json:"n"`
	}{
		Start:        e.Start.Unix(),
		End:          e.End.Unix(),
		AllDay:       e.AllDay,
		Title:        e.Title,
		Location:     e.Location,
		Description:  e.Description,
		Attendees:    e.Attendees,
		Reminders:    e.Reminders,
		Visibility:   e.Visibility,
		Transparency: e.Transparency,
		Timezone:     e.Timezone,
		Color:        e.Color,
		Recurrence:   e.Recurrence,
		MeetingLink:  e.MeetingLink,
		Completed:    e.Completed,
		Notes:        e.Notes,
	}

	data, err := json.Marshal(fp)
	if err != nil {
		// Marshal of a plain struct cannot fail; keep the signature simple.
		return ""
	}
	return string(data)
}

// Normalize reshapes an inbound snapshot into canonical cache form:
// the source tag defaults to event, the cache ID is recomputed from the
// remote identifier pair, and a missing end collapses to the start.
// The input is not modified.
func Normalize(in *Entity) *Entity {
	e := in.Clone()
	if e.Source == "" {
		e.Source = SourceEvent
	}
	if e.RemoteID != "" {
		e.ID = RemoteRef(e.ContainerID, e.RemoteID).ID()
	}
	if e.End.IsZero() {
		e.End = e.Start
	}
	return e
}

// MutationKey returns the normalized key used to correlate optimistic
// edits with their eventual remote echoes. The remote identifier wins
// when known; provisional entities fall back to their local ID.
func (e *Entity) MutationKey() MutationKey {
	if e.RemoteID != "" {
		return MutationKey(e.RemoteID)
	}
	return MutationKey(e.ID)
}

package entity

import "time"

// Patch is a partial update to an entity. Nil fields are left untouched
// when the patch is applied, so callers only describe what changed.
type Patch struct {
	Start        *time.Time `json:"start,omitempty"`
	End          *time.Time `json:"end,omitempty"`
	AllDay       *bool      `json:"all_day,omitempty"`
	Title        *string    `json:"title,omitempty"`
	Location     *string    `json:"location,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Attendees    []string   `json:"attendees,omitempty"`
	Reminders    []int      `json:"reminders,omitempty"`
	Visibility   *string    `json:"visibility,omitempty"`
	Transparency *string    `json:"transparency,omitempty"`
	Timezone     *string    `json:"timezone,omitempty"`
	Color        *string    `json:"color,omitempty"`
	Recurrence   *string    `json:"recurrence,omitempty"`
	MeetingLink  *string    `json:"meeting_link,omitempty"`
	Completed    *bool      `json:"completed,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

// Apply overlays the patch onto a copy of the entity and returns it.
// The receiver entity is not modified.
func (p Patch) Apply(e *Entity) *Entity {
	out := e.Clone()
	if p.Start != nil {
		out.Start = *p.Start
	}
	if p.End != nil {
		out.End = *p.End
	}
	if p.AllDay != nil {
		out.AllDay = *p.AllDay
	}
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Location != nil {
		out.Location = *p.Location
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Attendees != nil {
		out.Attendees = append([]string(nil), p.Attendees...)
	}
	if p.Reminders != nil {
		out.Reminders = append([]int(nil), p.Reminders...)
	}
	if p.Visibility != nil {
		out.Visibility = *p.Visibility
	}
	if p.Transparency != nil {
		out.Transparency = *p.Transparency
	}
	if p.Timezone != nil {
		out.Timezone = *p.Timezone
	}
	if p.Color != nil {
		out.Color = *p.Color
	}
	if p.Recurrence != nil {
		out.Recurrence = *p.Recurrence
	}
	if p.MeetingLink != nil {
		out.MeetingLink = *p.MeetingLink
	}
	if p.Completed != nil {
		out.Completed = *p.Completed
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	return out
}

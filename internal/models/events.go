package models

import "encoding/json"

// Status is the derived inside/outside state of a staff session
type Status string

const (
	StatusUnknown Status = "Unknown"
	StatusInside  Status = "Inside"
	StatusOutside Status = "Outside"
)

// EventType distinguishes the kinds of events fanned out to supervisors
type EventType string

const (
	// EventStatus is a status transition (Inside/Outside/Unknown change)
	EventStatus EventType = "status"
	// EventPosition is a routine marker-movement update, no status change
	EventPosition EventType = "position"
	// EventBoundaryUpdated carries a new boundary snapshot for a staff member
	EventBoundaryUpdated EventType = "boundary-updated"
	// EventBoundaryRemoved signals that a staff member's boundary was deleted
	EventBoundaryRemoved EventType = "boundary-removed"
)

// Critical reports whether an event must never be dropped by a slow
// subscriber queue. Position updates are superseded by the next sample;
// everything else is correctness-relevant.
func (t EventType) Critical() bool {
	return t != EventPosition
}

// StatusEvent is the unit broadcast to supervisor views. It carries enough
// information for a reconciler to redraw without re-querying storage.
type StatusEvent struct {
	Type          EventType       `json:"type"`
	StaffID       int64           `json:"staffId"`
	Name          string          `json:"name,omitempty"`
	Status        Status          `json:"status"`
	Latitude      float64         `json:"latitude"`
	Longitude     float64         `json:"longitude"`
	LowConfidence bool            `json:"lowConfidence,omitempty"`
	Boundary      json.RawMessage `json:"boundary,omitempty"`
	Timestamp     int64           `json:"timestamp,omitempty"` // Unix milliseconds
}

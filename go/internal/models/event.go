package models

import (
	"encoding/json"
	"time"
)

// EventType tags an entry in the match event log.
type EventType string

const (
	EventTypeJoin       EventType = "join"
	EventTypeLeave      EventType = "leave"
	EventTypeHit        EventType = "hit"
	EventTypeDisqualify EventType = "disqualify"
)

// Event is an immutable entry in a match's append-only log. The concrete
// types are JoinEvent, LeaveEvent, HitEvent and DisqualifyEvent.
type Event interface {
	Type() EventType
	Plane() string
	OccurredAt() time.Time
	isEvent()
}

// JoinEvent records a plane joining the match roster.
type JoinEvent struct {
	PlaneID   string
	Timestamp time.Time
}

// LeaveEvent records a plane leaving the roster, either because its link
// dropped or because the referee removed it before the match started.
type LeaveEvent struct {
	PlaneID   string
	Timestamp time.Time
}

// HitEvent records PlaneID scoring a hit on TargetID.
type HitEvent struct {
	PlaneID   string
	TargetID  string
	Timestamp time.Time
	// ReportedAt is the time the hardware claims the hit happened, if sent.
	ReportedAt *time.Time
}

// DisqualifyEvent records a plane being barred from the rest of the match.
type DisqualifyEvent struct {
	PlaneID   string
	Timestamp time.Time
}

func (JoinEvent) Type() EventType       { return EventTypeJoin }
func (LeaveEvent) Type() EventType      { return EventTypeLeave }
func (HitEvent) Type() EventType        { return EventTypeHit }
func (DisqualifyEvent) Type() EventType { return EventTypeDisqualify }

func (e JoinEvent) Plane() string       { return e.PlaneID }
func (e LeaveEvent) Plane() string      { return e.PlaneID }
func (e HitEvent) Plane() string        { return e.PlaneID }
func (e DisqualifyEvent) Plane() string { return e.PlaneID }

func (e JoinEvent) OccurredAt() time.Time       { return e.Timestamp }
func (e LeaveEvent) OccurredAt() time.Time      { return e.Timestamp }
func (e HitEvent) OccurredAt() time.Time        { return e.Timestamp }
func (e DisqualifyEvent) OccurredAt() time.Time { return e.Timestamp }

func (JoinEvent) isEvent()       {}
func (LeaveEvent) isEvent()      {}
func (HitEvent) isEvent()        {}
func (DisqualifyEvent) isEvent() {}

type eventJSON struct {
	Type       EventType  `json:"type"`
	PlaneID    string     `json:"planeId"`
	TargetID   string     `json:"targetId,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	ReportedAt *time.Time `json:"reportedAt,omitempty"`
}

func (e JoinEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{Type: EventTypeJoin, PlaneID: e.PlaneID, Timestamp: e.Timestamp})
}

func (e LeaveEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{Type: EventTypeLeave, PlaneID: e.PlaneID, Timestamp: e.Timestamp})
}

func (e HitEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Type:       EventTypeHit,
		PlaneID:    e.PlaneID,
		TargetID:   e.TargetID,
		Timestamp:  e.Timestamp,
		ReportedAt: e.ReportedAt,
	})
}

func (e DisqualifyEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{Type: EventTypeDisqualify, PlaneID: e.PlaneID, Timestamp: e.Timestamp})
}

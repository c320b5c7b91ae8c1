package models

import (
	"encoding/json"
	"time"
)

// MatchStatus defines the lifecycle state of a match.
type MatchStatus string

const (
	MatchStatusWaiting MatchStatus = "waiting"
	MatchStatusActive  MatchStatus = "active"
	MatchStatusEnded   MatchStatus = "ended"
)

// MatchType defines how a match is decided. Only timed matches exist today.
type MatchType string

const (
	MatchTypeTimed MatchType = "timed"
)

// Match bounds and defaults.
const (
	MinDuration       = 30 * time.Second
	MaxDuration       = 1800 * time.Second
	DefaultDuration   = 420 * time.Second
	MinPlayers        = 2
	MaxPlayers        = 16
	DefaultMaxPlayers = 2
	MinPlayersToStart = 2
)

// Match is a single timed scoring session.
type Match struct {
	ID         string        `json:"matchId"`
	PIN        string        `json:"gamePin"`
	Status     MatchStatus   `json:"status"`
	Type       MatchType     `json:"matchType"`
	CreatedAt  time.Time     `json:"createdAt"`
	Duration   time.Duration `json:"-"`
	MaxPlayers int           `json:"maxPlayers"`
	EndsAt     *time.Time    `json:"endsAt,omitempty"`
	EndedAt    *time.Time    `json:"endedAt,omitempty"`
	ServerURL  string        `json:"serverUrl"`
	WSURL      string        `json:"wsUrl"`
	// LocalIP is the raw LAN address for clients that cannot resolve mDNS.
	LocalIP string `json:"localIp,omitempty"`

	// Roster holds the ids of currently joined planes in join order.
	Roster []string `json:"matchPlanes"`
	Events []Event  `json:"events"`
}

// DurationSeconds is the configured duration as whole seconds.
func (m *Match) DurationSeconds() int {
	return int(m.Duration / time.Second)
}

// InRoster reports whether planeID is currently joined.
func (m *Match) InRoster(planeID string) bool {
	for _, id := range m.Roster {
		if id == planeID {
			return true
		}
	}
	return false
}

// RemoveFromRoster drops planeID from the roster, keeping order.
func (m *Match) RemoveFromRoster(planeID string) bool {
	for i, id := range m.Roster {
		if id == planeID {
			m.Roster = append(m.Roster[:i:i], m.Roster[i+1:]...)
			return true
		}
	}
	return false
}

// MarshalJSON renders the duration in seconds, the unit clients configure it in.
func (m Match) MarshalJSON() ([]byte, error) {
	type alias Match
	return json.Marshal(struct {
		alias
		Duration int `json:"duration"`
	}{alias(m), m.DurationSeconds()})
}

// LastEventAt returns the timestamp of the newest logged event.
func (m *Match) LastEventAt() (time.Time, bool) {
	if len(m.Events) == 0 {
		return time.Time{}, false
	}
	return m.Events[len(m.Events)-1].OccurredAt(), true
}

// Clone returns a deep copy safe to hand out of the arena lock.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Roster = append([]string(nil), m.Roster...)
	c.Events = append([]Event(nil), m.Events...)
	if m.EndsAt != nil {
		t := *m.EndsAt
		c.EndsAt = &t
	}
	if m.EndedAt != nil {
		t := *m.EndedAt
		c.EndedAt = &t
	}
	return &c
}

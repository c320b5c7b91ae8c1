package models

import "time"

// PlaneIcon is the marker colour the apps draw a plane with.
type PlaneIcon string

const (
	PlaneIconBlack PlaneIcon = "BLACK"
	PlaneIconWhite PlaneIcon = "WHITE"
)

// Plane is a registered hardware combatant. Planes outlive matches; the
// per-match counters and flags are reset when a new match is created.
type Plane struct {
	PlaneID      string    `json:"planeId"`
	UserID       string    `json:"userId"`
	Address      string    `json:"esp32Ip,omitempty"`
	PlayerName   string    `json:"playerName,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
	Icon         PlaneIcon `json:"icon"`

	Hits      int `json:"hits"`
	HitsTaken int `json:"hitsTaken"`

	Online       bool `json:"isOnline"`
	Joined       bool `json:"isJoined"`
	Disqualified bool `json:"isDisqualified"`
}

// ResetMatchStats clears everything that belongs to a single match.
func (p *Plane) ResetMatchStats() {
	p.Hits = 0
	p.HitsTaken = 0
	p.Disqualified = false
	p.Joined = false
}

// Score is one row of a scoreboard.
type Score struct {
	PlaneID      string `json:"planeId"`
	PlayerName   string `json:"playerName,omitempty"`
	Hits         int    `json:"hits"`
	HitsTaken    int    `json:"hitsTaken"`
	Disqualified bool   `json:"isDisqualified"`
	Winner       bool   `json:"isWinner"`
}

// ScoreOf returns the scoreboard row for a plane.
func ScoreOf(p Plane) Score {
	return Score{
		PlaneID:      p.PlaneID,
		PlayerName:   p.PlayerName,
		Hits:         p.Hits,
		HitsTaken:    p.HitsTaken,
		Disqualified: p.Disqualified,
	}
}

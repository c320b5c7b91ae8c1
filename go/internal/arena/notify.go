package arena

import (
	"time"

	"github.com/aeroduel/arena/go/internal/models"
)

// RemovalReason explains why a plane left the roster against its will.
type RemovalReason string

const (
	RemovalReasonKick       RemovalReason = "kick"
	RemovalReasonDisconnect RemovalReason = "disconnect"
	RemovalReasonManual     RemovalReason = "manual"
)

// MatchUpdate is a live snapshot of the current match.
type MatchUpdate struct {
	MatchID       string
	Status        models.MatchStatus
	TimeRemaining *time.Duration
	Scores        []models.Score
}

// Flash tells a hit plane to flash its lights.
type Flash struct {
	MatchID     string
	PlaneID     string
	OwnerUserID string
	ByPlaneID   string
	At          time.Time
}

// Removal reports a plane being kicked or disqualified.
type Removal struct {
	MatchID      string
	PlaneID      string
	OwnerUserID  string
	Disqualified bool
	Reason       RemovalReason
}

// Notifier receives the outward-facing consequences of state changes.
// Calls are made while the arena lock is held, so implementations must not
// block and must not call back into the arena.
type Notifier interface {
	MatchCreated(m *models.Match)
	MatchUpdated(u MatchUpdate)
	MatchStateChanged(status models.MatchStatus)
	MatchEnded(matchID string, results Results)
	PlaneHit(matchID string, hit models.HitEvent)
	PlaneFlash(f Flash)
	PlanePoweredOn(matchID, planeID, userID string)
	PlaneRemoved(r Removal)
}

// Notifiers fans every notification out to each member in order.
type Notifiers []Notifier

func (ns Notifiers) MatchCreated(m *models.Match) {
	for _, n := range ns {
		n.MatchCreated(m)
	}
}

func (ns Notifiers) MatchUpdated(u MatchUpdate) {
	for _, n := range ns {
		n.MatchUpdated(u)
	}
}

func (ns Notifiers) MatchStateChanged(status models.MatchStatus) {
	for _, n := range ns {
		n.MatchStateChanged(status)
	}
}

func (ns Notifiers) MatchEnded(matchID string, results Results) {
	for _, n := range ns {
		n.MatchEnded(matchID, results)
	}
}

func (ns Notifiers) PlaneHit(matchID string, hit models.HitEvent) {
	for _, n := range ns {
		n.PlaneHit(matchID, hit)
	}
}

func (ns Notifiers) PlaneFlash(f Flash) {
	for _, n := range ns {
		n.PlaneFlash(f)
	}
}

func (ns Notifiers) PlanePoweredOn(matchID, planeID, userID string) {
	for _, n := range ns {
		n.PlanePoweredOn(matchID, planeID, userID)
	}
}

func (ns Notifiers) PlaneRemoved(r Removal) {
	for _, n := range ns {
		n.PlaneRemoved(r)
	}
}

package arena

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aeroduel/arena/go/internal/models"
)

// Registry tracks every plane seen during this server run. Planes survive
// across matches. Roster and event bookkeeping go through the session so
// that the registry and the current match never disagree.
//
// Registry is not safe for concurrent use; Arena serializes access.
type Registry struct {
	session *Session
	planes  map[string]*models.Plane
	order   []string

	lastIcon models.PlaneIcon
}

// NewRegistry creates an empty registry bound to session.
func NewRegistry(session *Session) *Registry {
	return &Registry{
		session: session,
		planes:  make(map[string]*models.Plane),
	}
}

// Register inserts or updates a plane. Contact fields are refreshed and the
// plane is marked online; score and match flags are left untouched. New
// planes get alternating black and white icons; a plane keeps its icon when
// it registers again.
func (r *Registry) Register(planeID, userID, address string, now time.Time) *models.Plane {
	p, ok := r.planes[planeID]
	if !ok {
		p = &models.Plane{PlaneID: planeID, Icon: r.nextIcon()}
		r.planes[planeID] = p
		r.order = append(r.order, planeID)
	}
	if userID != "" {
		p.UserID = userID
	}
	if address != "" {
		p.Address = address
	}
	p.RegisteredAt = now
	p.Online = true
	return p
}

func (r *Registry) nextIcon() models.PlaneIcon {
	if r.lastIcon == models.PlaneIconBlack {
		r.lastIcon = models.PlaneIconWhite
	} else {
		r.lastIcon = models.PlaneIconBlack
	}
	return r.lastIcon
}

// Get returns the plane with id planeID.
func (r *Registry) Get(planeID string) (*models.Plane, bool) {
	p, ok := r.planes[planeID]
	return p, ok
}

// All returns copies of every plane in registration order.
func (r *Registry) All() []models.Plane {
	out := make([]models.Plane, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.planes[id])
	}
	return out
}

// Online returns copies of the planes whose link is currently up.
func (r *Registry) Online() []models.Plane {
	var out []models.Plane
	for _, id := range r.order {
		if p := r.planes[id]; p.Online {
			out = append(out, *p)
		}
	}
	return out
}

// Joined returns copies of the planes in the current roster, in join order.
// With no current match it is empty even if stale flags remain.
func (r *Registry) Joined() []models.Plane {
	m := r.session.Current()
	if m == nil {
		return nil
	}
	out := make([]models.Plane, 0, len(m.Roster))
	for _, id := range m.Roster {
		if p, ok := r.planes[id]; ok && p.Joined {
			out = append(out, *p)
		}
	}
	return out
}

// MarkOnline flags the plane's link as up.
func (r *Registry) MarkOnline(planeID string) bool {
	p, ok := r.planes[planeID]
	if !ok {
		log.Warn().Str("plane_id", planeID).Msg("mark online: plane not found")
		return false
	}
	p.Online = true
	return true
}

// MarkOffline flags the plane's link as down. A plane in the roster of a
// waiting or active match is un-joined, removed from the roster and a leave
// event is logged; the return value reports whether that happened.
func (r *Registry) MarkOffline(planeID string, now time.Time) bool {
	p, ok := r.planes[planeID]
	if !ok {
		log.Warn().Str("plane_id", planeID).Msg("mark offline: plane not found")
		return false
	}
	p.Online = false
	log.Info().Str("plane_id", planeID).Msg("plane went offline")

	m := r.session.Current()
	if m == nil || m.Status == models.MatchStatusEnded || !m.InRoster(planeID) {
		return false
	}
	p.Joined = false
	m.RemoveFromRoster(planeID)
	r.session.appendEvent(models.LeaveEvent{PlaneID: planeID, Timestamp: now})
	return true
}

// Join enrolls a registered plane in the current match under displayName.
// It returns false when there is no match or the plane is unknown.
func (r *Registry) Join(planeID, displayName string, now time.Time) bool {
	m := r.session.Current()
	if m == nil {
		return false
	}
	p, ok := r.planes[planeID]
	if !ok {
		return false
	}

	p.PlayerName = displayName
	p.Joined = true
	if !m.InRoster(planeID) {
		m.Roster = append(m.Roster, planeID)
	}
	r.session.appendEvent(models.JoinEvent{PlaneID: planeID, Timestamp: now})
	return true
}

// Remove takes a joined plane out of the roster, optionally disqualifying it.
func (r *Registry) Remove(planeID string, disqualify bool, now time.Time) bool {
	m := r.session.Current()
	p, ok := r.planes[planeID]
	if m == nil || !ok || !p.Joined {
		return false
	}

	p.Joined = false
	m.RemoveFromRoster(planeID)
	if disqualify {
		p.Disqualified = true
		r.session.appendEvent(models.DisqualifyEvent{PlaneID: planeID, Timestamp: now})
	} else {
		r.session.appendEvent(models.LeaveEvent{PlaneID: planeID, Timestamp: now})
	}
	return true
}

// RecordHit credits attackerID with a hit on targetID. It does not check the
// match status; callers enforce that.
func (r *Registry) RecordHit(attackerID, targetID string, now time.Time, reportedAt *time.Time) (models.HitEvent, bool) {
	if r.session.Current() == nil {
		return models.HitEvent{}, false
	}
	attacker, ok := r.planes[attackerID]
	if !ok {
		return models.HitEvent{}, false
	}
	target, ok := r.planes[targetID]
	if !ok {
		return models.HitEvent{}, false
	}

	attacker.Hits++
	target.HitsTaken++
	e := r.session.appendEvent(models.HitEvent{
		PlaneID:    attackerID,
		TargetID:   targetID,
		Timestamp:  now,
		ReportedAt: reportedAt,
	})
	return e.(models.HitEvent), true
}

// ResetMatchStats zeroes per-match counters and flags on every plane,
// online or not.
func (r *Registry) ResetMatchStats() {
	for _, p := range r.planes {
		p.ResetMatchStats()
	}
}

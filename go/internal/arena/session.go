package arena

import (
	"time"

	"github.com/aeroduel/arena/go/internal/models"
)

// Session holds the single current match and enforces its transitions:
//
//	none/ended -> waiting -> active -> ended
//
// Session is not safe for concurrent use; Arena serializes access.
type Session struct {
	match *models.Match

	// onIdentityChange runs whenever the current match id changes,
	// including to and from no match at all.
	onIdentityChange func(previous, next *models.Match)
}

// NewSession creates an empty session.
func NewSession(onIdentityChange func(previous, next *models.Match)) *Session {
	return &Session{onIdentityChange: onIdentityChange}
}

// Current returns the current match, which may be ended, or nil.
func (s *Session) Current() *models.Match {
	return s.match
}

// replace swaps the current match and fires the identity hook if the match
// id changed.
func (s *Session) replace(next *models.Match) {
	previous := s.match
	s.match = next

	changed := (previous == nil) != (next == nil) ||
		(previous != nil && next != nil && previous.ID != next.ID)
	if changed && s.onIdentityChange != nil {
		s.onIdentityChange(previous, next)
	}
}

// Create installs a new waiting match. It fails while a non-ended match exists.
func (s *Session) Create(m *models.Match) error {
	if s.match != nil && s.match.Status != models.MatchStatusEnded {
		return fail(KindConflict, ErrMatchInProgress)
	}
	m.Status = models.MatchStatusWaiting
	m.Roster = []string{}
	m.Events = []models.Event{}
	s.replace(m)
	return nil
}

// Start moves a waiting match with enough joined planes to active and
// records its absolute end time.
func (s *Session) Start(now time.Time) (time.Time, error) {
	m := s.match
	if m == nil {
		return time.Time{}, fail(KindNotFound, ErrNoMatch)
	}
	switch m.Status {
	case models.MatchStatusWaiting:
	case models.MatchStatusEnded:
		return time.Time{}, fail(KindConflict, ErrMatchEnded)
	default:
		return time.Time{}, fail(KindConflict, ErrMatchInProgress)
	}
	if len(m.Roster) < models.MinPlayersToStart {
		return time.Time{}, fail(KindConflict, ErrNotEnoughPlanes)
	}

	endsAt := now.Add(m.Duration)
	m.Status = models.MatchStatusActive
	m.EndsAt = &endsAt
	return endsAt, nil
}

// CanEnd reports whether an explicit end is accepted right now.
func (s *Session) CanEnd() error {
	m := s.match
	if m == nil {
		return fail(KindNotFound, ErrNoMatch)
	}
	switch m.Status {
	case models.MatchStatusWaiting:
		return fail(KindConflict, ErrMatchNotStarted)
	case models.MatchStatusEnded:
		return fail(KindGone, ErrMatchEnded)
	}
	return nil
}

// finish marks the active match as ended.
func (s *Session) finish(now time.Time) {
	s.match.Status = models.MatchStatusEnded
	s.match.EndedAt = &now
}

// Clear removes an ended match so that no match exists.
func (s *Session) Clear() error {
	m := s.match
	if m == nil {
		return fail(KindNotFound, ErrNoMatch)
	}
	if m.Status != models.MatchStatusEnded {
		return fail(KindConflict, ErrMatchNotEnded)
	}
	s.replace(nil)
	return nil
}

// appendEvent adds e to the log. Timestamps never go backwards relative to
// the newest logged event.
func (s *Session) appendEvent(e models.Event) models.Event {
	if last, ok := s.match.LastEventAt(); ok && e.OccurredAt().Before(last) {
		e = withTimestamp(e, last)
	}
	s.match.Events = append(s.match.Events, e)
	return e
}

func withTimestamp(e models.Event, ts time.Time) models.Event {
	switch ev := e.(type) {
	case models.JoinEvent:
		ev.Timestamp = ts
		return ev
	case models.LeaveEvent:
		ev.Timestamp = ts
		return ev
	case models.HitEvent:
		ev.Timestamp = ts
		return ev
	case models.DisqualifyEvent:
		ev.Timestamp = ts
		return ev
	}
	return e
}

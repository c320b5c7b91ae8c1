package arena

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation. No failing operation mutates state.
type Kind string

const (
	// KindValidation is missing or malformed input.
	KindValidation Kind = "validation"
	// KindAuth is a bad device token, user token or host secret. The message
	// never says which part of the credential was wrong.
	KindAuth Kind = "auth"
	// KindConflict is an action that is not valid for the current match status.
	KindConflict Kind = "conflict"
	// KindGone is a conflict with a match that has already ended.
	KindGone Kind = "gone"
	// KindNotFound is an unknown match, plane or target.
	KindNotFound Kind = "not_found"
	// KindInternal is an inconsistency between components.
	KindInternal Kind = "internal"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNoMatch            = errors.New("no match active")
	ErrInvalidPIN         = errors.New("invalid game PIN or no match active")
	ErrMatchInProgress    = errors.New("a match is already in progress")
	ErrMatchNotWaiting    = errors.New("match is already in progress or ended")
	ErrMatchNotStarted    = errors.New("the current match has not yet started")
	ErrMatchNotActive     = errors.New("the match is not active")
	ErrMatchNotEnded      = errors.New("the current match has not ended")
	ErrMatchEnded         = errors.New("the current match has already ended")
	ErrMatchFull          = errors.New("match is full")
	ErrNotEnoughPlanes    = errors.New("at least 2 joined planes are required to start the match")
	ErrPlaneNotRegistered = errors.New("plane not registered")
	ErrPlaneOffline       = errors.New("plane is offline")
	ErrPlaneDisqualified  = errors.New("plane is disqualified from this match")
	ErrPlaneNotJoined     = errors.New("plane is not in the current match")
	ErrTargetNotFound     = errors.New("target plane is not in this match")
	ErrSelfHit            = errors.New("a plane cannot hit itself")
	ErrInconsistentState  = errors.New("internal state inconsistency")
)

// Error is the structured failure returned by every arena operation.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

func invalid(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)}
}

// KindOf returns the failure category of err, or KindInternal for errors
// that did not originate in the arena.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

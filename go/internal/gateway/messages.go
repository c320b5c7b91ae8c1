package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aeroduel/arena/go/internal/models"
)

// MessageType tags every frame sent to clients.
type MessageType string

const (
	TypeMatchUpdate       MessageType = "match:update"
	TypePlaneHit          MessageType = "plane:hit"
	TypeMatchEnd          MessageType = "match:end"
	TypeMatchCreated      MessageType = "match:created"
	TypePlanePowerOn      MessageType = "plane:poweron"
	TypePlaneFlash        MessageType = "plane:flash"
	TypePlaneKicked       MessageType = "plane:kicked"
	TypePlaneDisqualified MessageType = "plane:disqualified"
	TypeMatchState        MessageType = "match:state"
	TypeSystemAck         MessageType = "system:ack"
	TypeSystemError       MessageType = "system:error"
)

// Message is one outbound frame. The concrete types below are the whole
// catalog; Encode rejects anything else.
type Message interface {
	Type() MessageType
}

// MatchUpdate is the live status and scoreboard of the current match.
type MatchUpdate struct {
	Status models.MatchStatus `json:"status"`
	// TimeRemaining is in whole seconds and only set while active.
	TimeRemaining *int           `json:"timeRemaining"`
	Scores        []models.Score `json:"scores"`
}

// PlaneHit reports a single scored hit.
type PlaneHit struct {
	PlaneID   string    `json:"planeId"`
	TargetID  string    `json:"targetId"`
	Timestamp time.Time `json:"timestamp"`
}

// MatchEnd carries the final results.
type MatchEnd struct {
	Winners []string       `json:"winners"`
	Scores  []models.Score `json:"scores"`
}

// MatchCreated announces a new waiting match.
type MatchCreated struct {
	MatchID string             `json:"matchId"`
	Status  models.MatchStatus `json:"status"`
}

// PlanePowerOn announces that a plane finished registering.
type PlanePowerOn struct {
	PlaneID string `json:"planeId"`
	UserID  string `json:"userId"`
}

// PlaneFlash tells a plane it was hit.
type PlaneFlash struct {
	PlaneID   string    `json:"planeId"`
	ByPlaneID string    `json:"byPlaneId"`
	Timestamp time.Time `json:"timestamp"`
}

// PlaneRemoved is sent as plane:kicked or plane:disqualified.
type PlaneRemoved struct {
	PlaneID      string `json:"planeId"`
	Reason       string `json:"reason"`
	Disqualified bool   `json:"-"`
}

// MatchState tells planes whether hits are currently counted.
type MatchState struct {
	Status models.MatchStatus `json:"status"`
}

// SystemAck confirms a successful handshake.
type SystemAck struct {
	Role    Role   `json:"role"`
	UserID  string `json:"userId,omitempty"`
	PlaneID string `json:"planeId,omitempty"`
	MatchID string `json:"matchId,omitempty"`
}

// SystemError reports a handshake failure just before the socket closes.
type SystemError struct {
	Error string
}

func (MatchUpdate) Type() MessageType  { return TypeMatchUpdate }
func (PlaneHit) Type() MessageType     { return TypePlaneHit }
func (MatchEnd) Type() MessageType     { return TypeMatchEnd }
func (MatchCreated) Type() MessageType { return TypeMatchCreated }
func (PlanePowerOn) Type() MessageType { return TypePlanePowerOn }
func (PlaneFlash) Type() MessageType   { return TypePlaneFlash }
func (MatchState) Type() MessageType   { return TypeMatchState }
func (SystemAck) Type() MessageType    { return TypeSystemAck }
func (SystemError) Type() MessageType  { return TypeSystemError }

func (m PlaneRemoved) Type() MessageType {
	if m.Disqualified {
		return TypePlaneDisqualified
	}
	return TypePlaneKicked
}

type envelope struct {
	Type  MessageType `json:"type"`
	Data  any         `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Encode renders msg as a {"type", "data"} frame. System errors carry their
// text in a top-level "error" field instead.
func Encode(msg Message) ([]byte, error) {
	env := envelope{Type: msg.Type()}
	switch m := msg.(type) {
	case SystemError:
		env.Error = m.Error
	case MatchUpdate, PlaneHit, MatchEnd, MatchCreated, PlanePowerOn,
		PlaneFlash, PlaneRemoved, MatchState, SystemAck:
		env.Data = m
	default:
		return nil, fmt.Errorf("unknown message type %T", msg)
	}
	return json.Marshal(env)
}

// hello is the first frame every client must send.
type hello struct {
	Type      string `json:"type"`
	Role      Role   `json:"role"`
	MatchID   string `json:"matchId"`
	UserID    string `json:"userId"`
	PlaneID   string `json:"planeId"`
	AuthToken string `json:"authToken"`
}

// valid reports whether h is a well formed hello for a known role.
func (h hello) valid() bool {
	if h.Type != "hello" || h.AuthToken == "" {
		return false
	}
	switch h.Role {
	case RoleMobile:
		return h.MatchID != "" && h.UserID != ""
	case RoleArduino:
		return h.PlaneID != ""
	}
	return false
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/aeroduel/arena/go/internal/arena"
	"github.com/aeroduel/arena/go/internal/metrics"
	"github.com/aeroduel/arena/go/internal/models"
)

// Arena is the set of game operations the HTTP API exposes.
type Arena interface {
	Register(req arena.RegisterRequest) (arena.RegisterResult, error)
	Join(req arena.JoinRequest) (arena.JoinResult, error)
	Hit(req arena.HitRequest) (models.HitEvent, error)
	CreateMatch(req arena.CreateMatchRequest) (arena.CreateMatchResult, error)
	StartMatch(secret string) (time.Time, error)
	EndMatch(secret string) (arena.EndMatchResult, error)
	Kick(secret, planeID string) error
	ClearMatch(secret string) error
	Snapshot() arena.Snapshot
	OnlinePlanes() []models.Plane
}

// Handler serves the JSON API used by planes, phones and the referee.
type Handler struct {
	arena   Arena
	metrics metrics.Metrics
}

// NewHandler creates the API handler. A nil m disables metrics.
func NewHandler(a Arena, m metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Handler{arena: a, metrics: m}
}

// RegisterRoutes registers the API routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", h.HandleRegister)
	mux.HandleFunc("POST /api/join-match", h.HandleJoinMatch)
	mux.HandleFunc("POST /api/hit", h.HandleHit)
	mux.HandleFunc("POST /api/fire", h.HandleFire)
	mux.HandleFunc("POST /api/new-match", h.HandleNewMatch)
	mux.HandleFunc("POST /api/start-match", h.HandleStartMatch)
	mux.HandleFunc("POST /api/end-match", h.HandleEndMatch)
	mux.HandleFunc("POST /api/kick", h.HandleKick)
	mux.HandleFunc("POST /api/clear-match", h.HandleClearMatch)
	mux.HandleFunc("GET /api/match", h.HandleGetMatch)
	mux.HandleFunc("GET /api/planes", h.HandleGetPlanes)
}

type registerRequest struct {
	PlaneID string `json:"planeId"`
	UserID  string `json:"userId"`
	ESP32IP string `json:"esp32Ip"`
}

type tokenResponse struct {
	Success   bool    `json:"success"`
	AuthToken string  `json:"authToken"`
	MatchID   *string `json:"matchId"`
}

// HandleRegister handles POST /api/register
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}

	res, err := h.arena.Register(arena.RegisterRequest{
		PlaneID: req.PlaneID,
		UserID:  req.UserID,
		Address: req.ESP32IP,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := tokenResponse{Success: true, AuthToken: res.Token}
	if res.MatchID != "" {
		resp.MatchID = &res.MatchID
	}
	writeJSON(w, http.StatusOK, resp)
}

type joinRequest struct {
	GamePin    string `json:"gamePin"`
	PlaneID    string `json:"planeId"`
	UserID     string `json:"userId"`
	PlayerName string `json:"playerName"`
}

// HandleJoinMatch handles POST /api/join-match
func (h *Handler) HandleJoinMatch(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}

	res, err := h.arena.Join(arena.JoinRequest{
		PIN:        req.GamePin,
		PlaneID:    req.PlaneID,
		UserID:     req.UserID,
		PlayerName: req.PlayerName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Success: true, AuthToken: res.Token, MatchID: &res.MatchID})
}

type hitRequest struct {
	AuthToken string          `json:"authToken"`
	PlaneID   string          `json:"planeId"`
	TargetID  string          `json:"targetId"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type hitResponse struct {
	Success bool            `json:"success"`
	Event   models.HitEvent `json:"event"`
}

// HandleHit handles POST /api/hit
func (h *Handler) HandleHit(w http.ResponseWriter, r *http.Request) {
	var req hitRequest
	if err := decode(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}
	reportedAt, err := parseTimestamp(req.Timestamp)
	if err != nil {
		h.writeInvalidJSON(w, err)
		return
	}

	ev, err := h.arena.Hit(arena.HitRequest{
		Token:      req.AuthToken,
		PlaneID:    req.PlaneID,
		TargetID:   req.TargetID,
		ReportedAt: reportedAt,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hitResponse{Success: true, Event: ev})
}

// parseTimestamp accepts an RFC 3339 string or Unix milliseconds. A missing
// or null value yields nil.
func parseTimestamp(raw json.RawMessage) (*time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid timestamp: %w", err)
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			t := time.UnixMilli(ms).UTC()
			return &t, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp: %w", err)
		}
		return &t, nil
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	// float64(math.MaxInt64) is 2^63, the first value that does not fit
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("invalid timestamp %s", raw)
	}
	t := time.UnixMilli(int64(f)).UTC()
	return &t, nil
}

type fireRequest struct {
	PlaneID  string `json:"planeId"`
	TargetID string `json:"targetId"`
}

// HandleFire handles POST /api/fire. Planes fire their own weapons.
func (h *Handler) HandleFire(w http.ResponseWriter, r *http.Request) {
	var req fireRequest
	if err := decode(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}
	if req.PlaneID == "" || req.TargetID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "Missing required fields: planeId and targetId are required.",
		})
		return
	}
	writeJSON(w, http.StatusTeapot, errorResponse{
		Error: "I'm a server, not a fighter jet. Ask the plane to fire, not me.",
	})
}

type privilegedRequest struct {
	ServerToken string `json:"serverToken"`
}

type newMatchRequest struct {
	ServerToken string `json:"serverToken"`
	Duration    *int   `json:"duration"`
	MaxPlayers  *int   `json:"maxPlayers"`
}

// matchDescriptor is the new-match payload a host shows as a QR code.
type matchDescriptor struct {
	MatchID     string             `json:"matchId"`
	GamePin     string             `json:"gamePin"`
	QRCodeData  string             `json:"qrCodeData"`
	Status      models.MatchStatus `json:"status"`
	MatchType   models.MatchType   `json:"matchType"`
	CreatedAt   time.Time          `json:"createdAt"`
	Duration    int                `json:"duration"`
	MaxPlayers  int                `json:"maxPlayers"`
	ServerURL   string             `json:"serverUrl"`
	WSURL       string             `json:"wsUrl"`
	LocalIP     string             `json:"localIp,omitempty"`
	MatchPlanes []string           `json:"matchPlanes"`
}

type newMatchResponse struct {
	Success bool            `json:"success"`
	Match   matchDescriptor `json:"match"`
}

// HandleNewMatch handles POST /api/new-match
func (h *Handler) HandleNewMatch(w http.ResponseWriter, r *http.Request) {
	var req newMatchRequest
	if err := decode(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}

	res, err := h.arena.CreateMatch(arena.CreateMatchRequest{
		Secret:          req.ServerToken,
		DurationSeconds: req.Duration,
		MaxPlayers:      req.MaxPlayers,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	m := res.Match
	writeJSON(w, http.StatusOK, newMatchResponse{
		Success: true,
		Match: matchDescriptor{
			MatchID:     m.ID,
			GamePin:     m.PIN,
			QRCodeData:  res.JoinLink,
			Status:      m.Status,
			MatchType:   m.Type,
			CreatedAt:   m.CreatedAt,
			Duration:    m.DurationSeconds(),
			MaxPlayers:  m.MaxPlayers,
			ServerURL:   m.ServerURL,
			WSURL:       m.WSURL,
			LocalIP:     m.LocalIP,
			MatchPlanes: append([]string{}, m.Roster...),
		},
	})
}

type startMatchResponse struct {
	Success bool      `json:"success"`
	EndsAt  time.Time `json:"endsAt"`
}

// HandleStartMatch handles POST /api/start-match
func (h *Handler) HandleStartMatch(w http.ResponseWriter, r *http.Request) {
	var req privilegedRequest
	if err := decode(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}

	endsAt, err := h.arena.StartMatch(req.ServerToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startMatchResponse{Success: true, EndsAt: endsAt})
}

type endMatchResponse struct {
	Success bool          `json:"success"`
	Match   *models.Match `json:"match"`
	Results arena.Results `json:"results"`
}

// HandleEndMatch handles POST /api/end-match
func (h *Handler) HandleEndMatch(w http.ResponseWriter, r *http.Request) {
	var req privilegedRequest
	if err := decode(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}

	res, err := h.arena.EndMatch(req.ServerToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, endMatchResponse{Success: true, Match: res.Match, Results: res.Results})
}

type kickRequest struct {
	ServerToken string `json:"serverToken"`
	PlaneID     string `json:"planeId"`
}

// HandleKick handles POST /api/kick
func (h *Handler) HandleKick(w http.ResponseWriter, r *http.Request) {
	var req kickRequest
	if err := decode(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}

	if err := h.arena.Kick(req.ServerToken, req.PlaneID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// HandleClearMatch handles POST /api/clear-match
func (h *Handler) HandleClearMatch(w http.ResponseWriter, r *http.Request) {
	var req privilegedRequest
	if err := decode(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}

	if err := h.arena.ClearMatch(req.ServerToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// matchResponse is the polling view of the current match.
type matchResponse struct {
	*models.Match
	TimeRemaining *int           `json:"timeRemaining"`
	Planes        []models.Plane `json:"planes"`
	Scores        []models.Score `json:"scores"`
}

// MarshalJSON merges the live fields into the match object. The embedded
// match has its own MarshalJSON, which would otherwise hide them.
func (m matchResponse) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(m.Match)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for key, v := range map[string]any{
		"timeRemaining": m.TimeRemaining,
		"planes":        m.Planes,
		"scores":        m.Scores,
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[key] = raw
	}
	return json.Marshal(fields)
}

// HandleGetMatch handles GET /api/match
func (h *Handler) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	snap := h.arena.Snapshot()
	if snap.Match == nil {
		h.writeError(w, r, &arena.Error{Kind: arena.KindNotFound, Err: arena.ErrNoMatch})
		return
	}

	resp := matchResponse{
		Match:  snap.Match,
		Planes: nonNil(snap.Planes),
		Scores: nonNil(snap.Scores),
	}
	if snap.TimeRemaining != nil {
		secs := int(math.Ceil(snap.TimeRemaining.Seconds()))
		resp.TimeRemaining = &secs
	}
	writeJSON(w, http.StatusOK, resp)
}

type planesResponse struct {
	OnlinePlanes []models.Plane `json:"onlinePlanes"`
}

// HandleGetPlanes handles GET /api/planes
func (h *Handler) HandleGetPlanes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, planesResponse{OnlinePlanes: nonNil(h.arena.OnlinePlanes())})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

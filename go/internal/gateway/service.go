package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aeroduel/arena/go/internal/arena"
	"github.com/aeroduel/arena/go/internal/metrics"
	"github.com/aeroduel/arena/go/internal/models"
)

// Service is the realtime channel. It accepts client connections and turns
// arena notifications into scoped push frames.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

var _ arena.Notifier = (*Service)(nil)

// Config holds configuration for the realtime channel.
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the realtime channel.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates the realtime channel. auth checks hello frames and
// receives hardware link changes.
func NewService(config Config, auth Authenticator, m metrics.Metrics) *Service {
	if m == nil {
		m = metrics.Noop{}
	}
	connectionManager := NewConnectionManager(config.ConnectionConfig, auth, m)
	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
	}
}

// Start delivers frames until ctx is cancelled, then closes every
// connection.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting realtime gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("realtime gateway stopped")
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("realtime gateway routes registered")
}

// Stats returns the connected clients by role.
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

func mobilesIn(matchID string) Target {
	return Target{Role: RoleMobile, MatchID: matchID}
}

func (s *Service) MatchCreated(m *models.Match) {
	s.connectionManager.Enqueue(Target{Role: RoleMobile}, MatchCreated{MatchID: m.ID, Status: m.Status})
}

func (s *Service) MatchUpdated(u arena.MatchUpdate) {
	msg := MatchUpdate{Status: u.Status, Scores: u.Scores}
	if u.TimeRemaining != nil {
		secs := int((*u.TimeRemaining + time.Second - 1) / time.Second)
		msg.TimeRemaining = &secs
	}
	s.connectionManager.Enqueue(mobilesIn(u.MatchID), msg)
}

func (s *Service) MatchStateChanged(status models.MatchStatus) {
	s.connectionManager.Enqueue(Target{Role: RoleArduino}, MatchState{Status: status})
}

func (s *Service) MatchEnded(matchID string, results arena.Results) {
	s.connectionManager.Enqueue(mobilesIn(matchID), MatchEnd{Winners: results.Winners, Scores: results.Scores})
}

func (s *Service) PlaneHit(matchID string, hit models.HitEvent) {
	s.connectionManager.Enqueue(mobilesIn(matchID), PlaneHit{
		PlaneID:   hit.PlaneID,
		TargetID:  hit.TargetID,
		Timestamp: hit.Timestamp,
	})
}

func (s *Service) PlanePoweredOn(matchID, planeID, userID string) {
	s.connectionManager.Enqueue(mobilesIn(matchID), PlanePowerOn{PlaneID: planeID, UserID: userID})
}

func (s *Service) PlaneFlash(f arena.Flash) {
	s.unicastToPlaneAndOwner(f.MatchID, f.PlaneID, f.OwnerUserID, PlaneFlash{
		PlaneID:   f.PlaneID,
		ByPlaneID: f.ByPlaneID,
		Timestamp: f.At,
	})
}

func (s *Service) PlaneRemoved(r arena.Removal) {
	s.unicastToPlaneAndOwner(r.MatchID, r.PlaneID, r.OwnerUserID, PlaneRemoved{
		PlaneID:      r.PlaneID,
		Reason:       string(r.Reason),
		Disqualified: r.Disqualified,
	})
}

// unicastToPlaneAndOwner sends msg to the plane's hardware connection and to
// the one mobile client of its owner in the match.
func (s *Service) unicastToPlaneAndOwner(matchID, planeID, ownerUserID string, msg Message) {
	s.connectionManager.Enqueue(Target{Role: RoleArduino, PlaneID: planeID}, msg)
	if ownerUserID == "" {
		return
	}
	s.connectionManager.Enqueue(Target{Role: RoleMobile, MatchID: matchID, UserID: ownerUserID}, msg)
}

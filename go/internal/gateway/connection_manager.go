package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/aeroduel/arena/go/internal/metrics"
)

// Role identifies the kind of client on a connection.
type Role string

const (
	RoleMobile  Role = "mobile"
	RoleArduino Role = "arduino"

	// roleHardware is accepted in hello frames as an alias of RoleArduino.
	roleHardware Role = "hardware"
)

const (
	errFirstMessage = "First message must be a 'hello' handshake."
	errInvalidJSON  = "Invalid JSON."
	errMobileAuth   = "Invalid auth token for this user/match."
	errPlaneAuth    = "Invalid auth token for this plane."
)

// Authenticator validates hello credentials and tracks hardware links.
type Authenticator interface {
	AuthenticateUser(matchID, userID, token string) error
	AuthenticateDevice(planeID, token string) error
	PlaneConnected(planeID string) bool
	PlaneDisconnected(planeID string)
}

// ConnectionManager owns every realtime connection and delivers outbound
// frames to the connections a Target selects.
type ConnectionManager struct {
	connections map[*Connection]struct{}
	mu          sync.RWMutex

	// linkMu orders hardware registration and teardown with the
	// PlaneConnected / PlaneDisconnected calls they trigger.
	linkMu sync.Mutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	auth     Authenticator
	metrics  metrics.Metrics

	broadcastCh chan BroadcastMessage
}

// Connection is one handshaken client.
type Connection struct {
	ID      string
	Role    Role
	UserID  string
	MatchID string
	PlaneID string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for realtime connections.
type ConnectionConfig struct {
	HelloTimeout    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// Target selects the connections a frame goes to. Empty fields match any
// value.
type Target struct {
	Role    Role
	MatchID string
	UserID  string
	PlaneID string
}

func (t Target) matches(c *Connection) bool {
	return c.Role == t.Role &&
		(t.MatchID == "" || c.MatchID == t.MatchID) &&
		(t.UserID == "" || c.UserID == t.UserID) &&
		(t.PlaneID == "" || c.PlaneID == t.PlaneID)
}

// BroadcastMessage is a frame queued for delivery.
type BroadcastMessage struct {
	Target  Target
	Message Message
}

// DefaultConnectionConfig returns default realtime configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		HelloTimeout:    5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// planes and phones connect from arbitrary LAN addresses
			return true
		},
	}
}

// NewConnectionManager creates a connection manager that checks hellos
// against auth.
func NewConnectionManager(config ConnectionConfig, auth Authenticator, m metrics.Metrics) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		auth:        auth,
		metrics:     m,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start delivers queued frames until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades the request and runs the hello handshake on
// its own goroutine.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	go connection.serve()

	log.Debug().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection awaiting hello")
	return nil
}

// Enqueue queues msg for every connection target selects. It never blocks;
// when the queue is full the frame is dropped.
func (cm *ConnectionManager) Enqueue(target Target, msg Message) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Target: target, Message: msg}:
	default:
		log.Warn().
			Str("type", string(msg.Type())).
			Str("role", string(target.Role)).
			Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	cm.connections[conn] = struct{}{}
	n := cm.countLocked(conn.Role)
	cm.mu.Unlock()

	cm.metrics.SetConnections(string(conn.Role), n)
	log.Debug().
		Str("connection_id", conn.ID).
		Str("role", string(conn.Role)).
		Int("role_connections", n).
		Msg("connection registered")
}

// unregisterConnection removes conn and closes its send queue. It reports
// whether conn was still registered.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	if _, ok := cm.connections[conn]; !ok {
		cm.mu.Unlock()
		return false
	}
	delete(cm.connections, conn)
	close(conn.Send)
	n := cm.countLocked(conn.Role)
	cm.mu.Unlock()

	cm.metrics.SetConnections(string(conn.Role), n)
	log.Info().
		Str("connection_id", conn.ID).
		Str("role", string(conn.Role)).
		Str("user_id", conn.UserID).
		Str("plane_id", conn.PlaneID).
		Msg("connection unregistered")
	return true
}

func (cm *ConnectionManager) countLocked(role Role) int {
	n := 0
	for c := range cm.connections {
		if c.Role == role {
			n++
		}
	}
	return n
}

// planeConnected reports whether any hardware connection for planeID is
// registered.
func (cm *ConnectionManager) planeConnected(planeID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for c := range cm.connections {
		if c.Role == RoleArduino && c.PlaneID == planeID {
			return true
		}
	}
	return false
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	var targets []*Connection
	for conn := range cm.connections {
		if message.Target.matches(conn) {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := Encode(message.Message)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode message for broadcast")
		return
	}

	for _, conn := range targets {
		conn.trySend(data)
	}

	log.Debug().
		Str("type", string(message.Message.Type())).
		Int("connections", len(targets)).
		Msg("message broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		c.Conn.Close()
	}
}

// ConnectedMobile describes one connected mobile client.
type ConnectedMobile struct {
	UserID  string `json:"userId"`
	MatchID string `json:"matchId"`
}

// ConnectedPlane describes one connected plane.
type ConnectedPlane struct {
	PlaneID string `json:"planeId"`
}

// ConnectionStats summarizes who is connected.
type ConnectionStats struct {
	Mobiles  []ConnectedMobile `json:"mobiles"`
	Arduinos []ConnectedPlane  `json:"arduinos"`
}

// GetConnectionStats returns the connected clients by role.
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{Mobiles: []ConnectedMobile{}, Arduinos: []ConnectedPlane{}}
	for c := range cm.connections {
		switch c.Role {
		case RoleMobile:
			stats.Mobiles = append(stats.Mobiles, ConnectedMobile{UserID: c.UserID, MatchID: c.MatchID})
		case RoleArduino:
			stats.Arduinos = append(stats.Arduinos, ConnectedPlane{PlaneID: c.PlaneID})
		}
	}
	return stats
}

// trySend queues data without blocking. A connection that cannot keep up is
// closed so it never holds up the others.
func (c *Connection) trySend(data []byte) {
	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()
	if _, ok := c.Manager.connections[c]; !ok {
		return
	}

	select {
	case c.Send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("role", string(c.Role)).
			Msg("connection send buffer full, closing connection")
		c.Conn.Close()
	}
}

// serve runs the handshake and then the read loop. It owns the lifecycle of
// the connection.
func (c *Connection) serve() {
	cm := c.Manager
	if err := c.handshake(); err != nil {
		cm.metrics.IncHandshakeFailures()
		log.Info().
			Err(err).
			Str("connection_id", c.ID).
			Msg("WebSocket handshake rejected")
		c.Conn.Close()
		return
	}

	go c.writePump()
	c.readPump()

	if c.Role != RoleArduino {
		cm.unregisterConnection(c)
		c.Conn.Close()
		return
	}

	// A replacement socket may be mid-handshake. Unregistering, checking
	// for it and reporting the drop happen as one step.
	cm.linkMu.Lock()
	defer cm.linkMu.Unlock()
	cm.unregisterConnection(c)
	c.Conn.Close()
	if !cm.planeConnected(c.PlaneID) {
		cm.auth.PlaneDisconnected(c.PlaneID)
	}
}

var errHandshake = errors.New("handshake failed")

// handshake reads the first frame, authenticates it and registers the
// connection. Failures are reported with a system:error frame.
func (c *Connection) handshake() error {
	cm := c.Manager
	c.Conn.SetReadLimit(cm.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cm.config.HelloTimeout))

	_, raw, err := c.Conn.ReadMessage()
	if err != nil {
		c.writeNow(SystemError{Error: errFirstMessage})
		return fmt.Errorf("%w: no hello received: %v", errHandshake, err)
	}

	var h hello
	if err := json.Unmarshal(raw, &h); err != nil {
		c.writeNow(SystemError{Error: errInvalidJSON})
		return fmt.Errorf("%w: invalid JSON: %v", errHandshake, err)
	}
	if h.Role == roleHardware {
		h.Role = RoleArduino
	}
	if !h.valid() {
		c.writeNow(SystemError{Error: errFirstMessage})
		return fmt.Errorf("%w: first frame is not a hello", errHandshake)
	}

	var ack SystemAck
	switch h.Role {
	case RoleMobile:
		if err := cm.auth.AuthenticateUser(h.MatchID, h.UserID, h.AuthToken); err != nil {
			c.writeNow(SystemError{Error: errMobileAuth})
			return fmt.Errorf("%w: %v", errHandshake, err)
		}
		c.Role, c.UserID, c.MatchID = RoleMobile, h.UserID, h.MatchID
		ack = SystemAck{Role: RoleMobile, UserID: h.UserID, MatchID: h.MatchID}
	case RoleArduino:
		if err := cm.auth.AuthenticateDevice(h.PlaneID, h.AuthToken); err != nil {
			c.writeNow(SystemError{Error: errPlaneAuth})
			return fmt.Errorf("%w: %v", errHandshake, err)
		}
		c.Role, c.PlaneID = RoleArduino, h.PlaneID
		ack = SystemAck{Role: RoleArduino, PlaneID: h.PlaneID}
	}

	data, err := Encode(ack)
	if err != nil {
		return err
	}
	// the ack is queued ahead of any broadcast
	c.Send <- data
	if c.Role == RoleArduino {
		cm.linkMu.Lock()
		cm.registerConnection(c)
		cm.auth.PlaneConnected(c.PlaneID)
		cm.linkMu.Unlock()
	} else {
		cm.registerConnection(c)
	}

	log.Info().
		Str("connection_id", c.ID).
		Str("role", string(c.Role)).
		Str("user_id", c.UserID).
		Str("match_id", c.MatchID).
		Str("plane_id", c.PlaneID).
		Msg("WebSocket connection established")
	return nil
}

// writeNow writes msg directly. Only valid before the write pump starts.
func (c *Connection) writeNow(msg Message) {
	data, err := Encode(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode message")
		return
	}
	c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump keeps the read side alive until the peer goes away. Frames after
// the handshake carry no commands and are dropped.
func (c *Connection) readPump() {
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		log.Debug().
			Str("connection_id", c.ID).
			Int("bytes", len(message)).
			Msg("ignoring frame after handshake")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeroduel/arena/go/internal/arena"
	"github.com/aeroduel/arena/go/internal/metrics"
	"github.com/aeroduel/arena/go/internal/models"
	"github.com/aeroduel/arena/go/internal/netinfo"
)

const testSecret = "host-secret"

type fixedLocator struct{}

func (fixedLocator) Locate() (netinfo.Endpoint, error) {
	return netinfo.Endpoint{Host: "127.0.0.1", Port: 45045}, nil
}

type harness struct {
	arena   *arena.Arena
	service *Service
	server  *httptest.Server
	metrics *metrics.Mock
}

func newHarness(t *testing.T, config Config) *harness {
	t.Helper()

	a, err := arena.New(testSecret, arena.WithLocator(fixedLocator{}))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	m := metrics.NewMock()
	svc := NewService(config, a, m)
	a.AddNotifier(svc)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &harness{arena: a, service: svc, server: server, metrics: m}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type  MessageType     `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ MessageType) frame {
	t.Helper()
	for {
		f := readFrame(t, conn)
		if f.Type == typ {
			return f
		}
	}
}

func requireClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection was not closed")
	}
}

func (h *harness) connectPlane(t *testing.T, planeID, userID string) *websocket.Conn {
	t.Helper()
	res, err := h.arena.Register(arena.RegisterRequest{PlaneID: planeID, UserID: userID})
	require.NoError(t, err)

	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "hello", "role": "arduino", "planeId": planeID, "authToken": res.Token,
	}))
	ack := readFrame(t, conn)
	require.Equal(t, TypeSystemAck, ack.Type)
	return conn
}

func (h *harness) connectMobile(t *testing.T, matchID, userID, token string) *websocket.Conn {
	t.Helper()
	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "hello", "role": "mobile", "matchId": matchID, "userId": userID, "authToken": token,
	}))
	ack := readFrame(t, conn)
	require.Equal(t, TypeSystemAck, ack.Type)
	return conn
}

func TestPlaneHandshake(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	res, err := h.arena.Register(arena.RegisterRequest{PlaneID: "alpha", UserID: "user-a"})
	require.NoError(t, err)

	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "hello", "role": "arduino", "planeId": "alpha", "authToken": res.Token,
	}))

	ack := readFrame(t, conn)
	assert.Equal(t, TypeSystemAck, ack.Type)
	assert.JSONEq(t, `{"role":"arduino","planeId":"alpha"}`, string(ack.Data))

	require.Eventually(t, func() bool {
		return len(h.service.Stats().Arduinos) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.metrics.Connections("arduino"))

	// planes hear every status change
	_, err = h.arena.CreateMatch(arena.CreateMatchRequest{Secret: testSecret})
	require.NoError(t, err)
	state := readUntil(t, conn, TypeMatchState)
	assert.JSONEq(t, `{"status":"waiting"}`, string(state.Data))
}

func TestHardwareRoleAlias(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	res, err := h.arena.Register(arena.RegisterRequest{PlaneID: "alpha"})
	require.NoError(t, err)

	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "hello", "role": "hardware", "planeId": "alpha", "authToken": res.Token,
	}))
	ack := readFrame(t, conn)
	assert.Equal(t, TypeSystemAck, ack.Type)
	assert.JSONEq(t, `{"role":"arduino","planeId":"alpha"}`, string(ack.Data))
}

func TestHandshakeFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		errMsg  string
	}{
		{"invalid json", `{"type":`, errInvalidJSON},
		{"not a hello", `{"type":"hit","planeId":"alpha"}`, errFirstMessage},
		{"unknown role", `{"type":"hello","role":"referee","authToken":"x"}`, errFirstMessage},
		{"mobile missing fields", `{"type":"hello","role":"mobile","userId":"u","authToken":"x"}`, errFirstMessage},
		{"bad plane token", `{"type":"hello","role":"arduino","planeId":"alpha","authToken":"nope"}`, errPlaneAuth},
		{"bad user token", `{"type":"hello","role":"mobile","matchId":"m","userId":"u","authToken":"nope"}`, errMobileAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			conn := h.dial(t)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)))

			f := readFrame(t, conn)
			assert.Equal(t, TypeSystemError, f.Type)
			assert.Equal(t, tt.errMsg, f.Error)
			requireClosed(t, conn)
			assert.Equal(t, 1, h.metrics.HandshakeFailures())
			assert.Empty(t, h.service.Stats().Arduinos)
			assert.Empty(t, h.service.Stats().Mobiles)
		})
	}
}

func TestHelloTimeout(t *testing.T) {
	config := DefaultConfig()
	config.ConnectionConfig.HelloTimeout = 50 * time.Millisecond
	h := newHarness(t, config)

	conn := h.dial(t)
	f := readFrame(t, conn)
	assert.Equal(t, TypeSystemError, f.Type)
	assert.Equal(t, errFirstMessage, f.Error)
	requireClosed(t, conn)
}

func TestFramesAfterHandshakeAreIgnored(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	conn := h.connectPlane(t, "alpha", "user-a")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not even json`)))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "hello", "role": "arduino"}))

	_, err := h.arena.CreateMatch(arena.CreateMatchRequest{Secret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, TypeMatchState, readUntil(t, conn, TypeMatchState).Type)
}

func TestMobileScoping(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.connectPlane(t, "alpha", "user-a")
	h.connectPlane(t, "bravo", "user-b")

	created, err := h.arena.CreateMatch(arena.CreateMatchRequest{Secret: testSecret})
	require.NoError(t, err)
	m := created.Match

	joinA, err := h.arena.Join(arena.JoinRequest{PIN: m.PIN, PlaneID: "alpha", UserID: "user-a", PlayerName: "Ace"})
	require.NoError(t, err)
	mobileA := h.connectMobile(t, m.ID, "user-a", joinA.Token)

	joinB, err := h.arena.Join(arena.JoinRequest{PIN: m.PIN, PlaneID: "bravo", UserID: "user-b", PlayerName: "Bandit"})
	require.NoError(t, err)

	update := readUntil(t, mobileA, TypeMatchUpdate)
	var payload MatchUpdate
	require.NoError(t, json.Unmarshal(update.Data, &payload))
	assert.Equal(t, models.MatchStatusWaiting, payload.Status)
	assert.Nil(t, payload.TimeRemaining)
	assert.Len(t, payload.Scores, 2)

	mobileB := h.connectMobile(t, m.ID, "user-b", joinB.Token)

	_, err = h.arena.StartMatch(testSecret)
	require.NoError(t, err)
	active := readUntil(t, mobileB, TypeMatchUpdate)
	require.NoError(t, json.Unmarshal(active.Data, &payload))
	assert.Equal(t, models.MatchStatusActive, payload.Status)
	require.NotNil(t, payload.TimeRemaining)
	assert.Equal(t, models.DefaultDuration/time.Second, time.Duration(*payload.TimeRemaining))

	require.NoError(t, h.arena.Kick(testSecret, "bravo"))

	// only the owner's phone hears about its plane
	removed := readUntil(t, mobileB, TypePlaneDisqualified)
	assert.JSONEq(t, `{"planeId":"bravo","reason":"kick"}`, string(removed.Data))

	// the roster update follows the removal frame on the wire, so anything
	// addressed to mobileA about bravo arrives before it
	for {
		f := readFrame(t, mobileA)
		require.NotEqual(t, TypePlaneDisqualified, f.Type)
		require.NotEqual(t, TypePlaneKicked, f.Type)
		if f.Type != TypeMatchUpdate {
			continue
		}
		require.NoError(t, json.Unmarshal(f.Data, &payload))
		if len(payload.Scores) == 1 {
			assert.Equal(t, "alpha", payload.Scores[0].PlaneID)
			break
		}
	}

	_, err = h.arena.EndMatch(testSecret)
	require.NoError(t, err)
	end := readUntil(t, mobileA, TypeMatchEnd)
	assert.JSONEq(t, `["alpha"]`, string(mustField(t, end.Data, "winners")))

	// a new match reaches every phone regardless of the match it joined
	_, err = h.arena.CreateMatch(arena.CreateMatchRequest{Secret: testSecret})
	require.NoError(t, err)
	readUntil(t, mobileA, TypeMatchCreated)
	readUntil(t, mobileB, TypeMatchCreated)
}

func TestHitFlashesTargetOnly(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	alphaToken, err := h.arena.Register(arena.RegisterRequest{PlaneID: "alpha", UserID: "user-a"})
	require.NoError(t, err)

	alpha := h.dial(t)
	require.NoError(t, alpha.WriteJSON(map[string]string{
		"type": "hello", "role": "arduino", "planeId": "alpha", "authToken": alphaToken.Token,
	}))
	require.Equal(t, TypeSystemAck, readFrame(t, alpha).Type)
	bravo := h.connectPlane(t, "bravo", "user-b")

	created, err := h.arena.CreateMatch(arena.CreateMatchRequest{Secret: testSecret})
	require.NoError(t, err)
	m := created.Match
	_, err = h.arena.Join(arena.JoinRequest{PIN: m.PIN, PlaneID: "alpha", UserID: "user-a", PlayerName: "Ace"})
	require.NoError(t, err)
	joinB, err := h.arena.Join(arena.JoinRequest{PIN: m.PIN, PlaneID: "bravo", UserID: "user-b", PlayerName: "Bandit"})
	require.NoError(t, err)
	mobileB := h.connectMobile(t, m.ID, "user-b", joinB.Token)
	_, err = h.arena.StartMatch(testSecret)
	require.NoError(t, err)

	_, err = h.arena.Hit(arena.HitRequest{Token: alphaToken.Token, PlaneID: "alpha", TargetID: "bravo"})
	require.NoError(t, err)

	flash := readUntil(t, bravo, TypePlaneFlash)
	assert.Equal(t, `"alpha"`, string(mustField(t, flash.Data, "byPlaneId")))
	hit := readUntil(t, mobileB, TypePlaneHit)
	assert.Equal(t, `"bravo"`, string(mustField(t, hit.Data, "targetId")))
	readUntil(t, mobileB, TypePlaneFlash)

	// the attacker hears the waiting and active states and nothing after them
	waiting := readUntil(t, alpha, TypeMatchState)
	assert.JSONEq(t, `{"status":"waiting"}`, string(waiting.Data))
	active := readUntil(t, alpha, TypeMatchState)
	assert.JSONEq(t, `{"status":"active"}`, string(active.Data))
	require.NoError(t, alpha.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = alpha.ReadMessage()
	assert.Error(t, err)
}

func TestPlaneDisconnectLeavesMatch(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	alpha := h.connectPlane(t, "alpha", "user-a")
	h.connectPlane(t, "bravo", "user-b")

	created, err := h.arena.CreateMatch(arena.CreateMatchRequest{Secret: testSecret})
	require.NoError(t, err)
	_, err = h.arena.Join(arena.JoinRequest{PIN: created.Match.PIN, PlaneID: "alpha", UserID: "user-a", PlayerName: "Ace"})
	require.NoError(t, err)

	require.NoError(t, alpha.Close())

	require.Eventually(t, func() bool {
		p, _ := h.arena.Plane("alpha")
		return !p.Online
	}, 2*time.Second, 10*time.Millisecond)
	p, _ := h.arena.Plane("alpha")
	assert.False(t, p.Joined)
	assert.Empty(t, h.arena.JoinedPlanes())
	assert.Len(t, h.service.Stats().Arduinos, 1)

	// reconnecting restores the link but not the roster slot
	h.connectPlane(t, "alpha", "user-a")
	p, _ = h.arena.Plane("alpha")
	assert.True(t, p.Online)
	assert.False(t, p.Joined)
}

func TestEncode(t *testing.T) {
	data, err := Encode(SystemError{Error: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"system:error","error":"boom"}`, string(data))

	data, err = Encode(PlaneRemoved{PlaneID: "alpha", Reason: "disconnect"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"plane:kicked","data":{"planeId":"alpha","reason":"disconnect"}}`, string(data))

	data, err = Encode(PlaneRemoved{PlaneID: "alpha", Reason: "kick", Disqualified: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"plane:disqualified","data":{"planeId":"alpha","reason":"kick"}}`, string(data))

	data, err = Encode(MatchUpdate{Status: models.MatchStatusWaiting, Scores: []models.Score{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"match:update","data":{"status":"waiting","timeRemaining":null,"scores":[]}}`, string(data))

	_, err = Encode(bogus{})
	assert.Error(t, err)
}

type bogus struct{}

func (bogus) Type() MessageType { return "bogus" }

func TestConnectionStatsHandler(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.connectPlane(t, "alpha", "user-a")

	resp, err := http.Get(h.server.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, []ConnectedPlane{{PlaneID: "alpha"}}, stats.Arduinos)
	assert.Empty(t, stats.Mobiles)
}

func mustField(t *testing.T, data json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	v, ok := fields[key]
	require.True(t, ok, "missing field %q", key)
	return v
}

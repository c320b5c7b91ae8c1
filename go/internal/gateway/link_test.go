package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeroduel/arena/go/internal/metrics"
)

// linkRecorder accepts every credential and records hardware link changes.
// The first PlaneDisconnected call parks until release is closed.
type linkRecorder struct {
	mu     sync.Mutex
	calls  []string
	online bool

	parked  chan struct{}
	release chan struct{}
	once    sync.Once
}

func newLinkRecorder() *linkRecorder {
	return &linkRecorder{parked: make(chan struct{}), release: make(chan struct{})}
}

func (l *linkRecorder) AuthenticateUser(matchID, userID, token string) error { return nil }
func (l *linkRecorder) AuthenticateDevice(planeID, token string) error       { return nil }

func (l *linkRecorder) PlaneConnected(planeID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "connected")
	l.online = true
	return true
}

func (l *linkRecorder) PlaneDisconnected(planeID string) {
	first := false
	l.once.Do(func() { first = true })
	if first {
		close(l.parked)
		<-l.release
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "disconnected")
	l.online = false
}

func (l *linkRecorder) snapshot() ([]string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...), l.online
}

func TestReconnectDuringTeardownStaysOnline(t *testing.T) {
	links := newLinkRecorder()
	svc := NewService(DefaultConfig(), links, metrics.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	h := &harness{service: svc, server: server}

	helloFrame := map[string]string{"type": "hello", "role": "arduino", "planeId": "alpha", "authToken": "t"}

	first := h.dial(t)
	require.NoError(t, first.WriteJSON(helloFrame))
	require.Equal(t, TypeSystemAck, readFrame(t, first).Type)

	// drop the first socket and hold its teardown inside PlaneDisconnected
	require.NoError(t, first.Close())
	select {
	case <-links.parked:
	case <-time.After(2 * time.Second):
		t.Fatal("teardown never reported the drop")
	}

	// the replacement handshakes while the old teardown is still in flight
	second := h.dial(t)
	require.NoError(t, second.WriteJSON(helloFrame))
	time.Sleep(50 * time.Millisecond)
	close(links.release)

	require.Equal(t, TypeSystemAck, readFrame(t, second).Type)
	assert.Eventually(t, func() bool {
		calls, _ := links.snapshot()
		return len(calls) == 3
	}, 2*time.Second, 10*time.Millisecond)

	calls, online := links.snapshot()
	assert.Equal(t, []string{"connected", "disconnected", "connected"}, calls)
	assert.True(t, online, "plane with a live socket must stay online")

	stats := svc.Stats()
	require.Len(t, stats.Arduinos, 1)
	assert.Equal(t, "alpha", stats.Arduinos[0].PlaneID)
}

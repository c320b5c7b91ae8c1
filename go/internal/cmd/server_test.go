package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeroduel/arena/go/internal/config"
)

// The metrics service registers on the default Prometheus registry, so the
// server is only built once per test binary.
func TestServer(t *testing.T) {
	cfg := config.Default()
	cfg.ServerToken = "referee"
	cfg.PublicHost = "127.0.0.1"
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	require.NoError(t, cfg.Validate())

	services, err := setupServices(cfg)
	require.NoError(t, err)
	require.Nil(t, services.Bus)
	t.Cleanup(services.Arena.Close)

	ts := httptest.NewServer(setupServer(cfg, services).Handler)
	t.Cleanup(ts.Close)

	client := &http.Client{Timeout: 5 * time.Second}

	get := func(t *testing.T, path string) (int, string) {
		t.Helper()
		resp, err := client.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	t.Run("health", func(t *testing.T) {
		code, body := get(t, "/health")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "OK", body)
	})

	t.Run("api is mounted", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/register", "application/json",
			strings.NewReader(`{"planeId":"alpha","userId":"user-a"}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		code, body := get(t, "/api/planes")
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, `"planeId":"alpha"`)
	})

	t.Run("metrics", func(t *testing.T) {
		code, body := get(t, "/metrics")
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, "aeroduel_planes_registered_total 1")
	})

	t.Run("websocket stats", func(t *testing.T) {
		code, body := get(t, "/ws/stats")
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, "mobiles")
	})

	t.Run("cors preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/new-match", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://lobby.local")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

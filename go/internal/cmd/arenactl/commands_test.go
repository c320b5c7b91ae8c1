package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

func newTestServer(t *testing.T, status int, reply string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path}
		if r.Body != nil && r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		seen = append(seen, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCreate_SendsTokenAndOptions(t *testing.T) {
	srv, seen := newTestServer(t, http.StatusOK, `{"success":true,"match":{"gamePin":"123456"}}`)

	out, err := run(t, "create", "--host", srv.URL, "--token", "referee", "--duration", "90")
	require.NoError(t, err)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/new-match", req.Path)
	assert.Equal(t, "referee", req.Body["serverToken"])
	assert.Equal(t, float64(90), req.Body["duration"])
	assert.NotContains(t, req.Body, "maxPlayers")
	assert.Contains(t, out, `"gamePin": "123456"`)
}

func TestKick_PassesPlaneID(t *testing.T) {
	srv, seen := newTestServer(t, http.StatusOK, `{"success":true}`)

	_, err := run(t, "kick", "bravo", "--host", srv.URL, "--token", "referee")
	require.NoError(t, err)

	require.Len(t, *seen, 1)
	assert.Equal(t, "/api/kick", (*seen)[0].Path)
	assert.Equal(t, "bravo", (*seen)[0].Body["planeId"])
}

func TestPrivilegedRoutes(t *testing.T) {
	for cmd, path := range map[string]string{
		"start": "/api/start-match",
		"end":   "/api/end-match",
		"clear": "/api/clear-match",
	} {
		t.Run(cmd, func(t *testing.T) {
			srv, seen := newTestServer(t, http.StatusOK, `{"success":true}`)

			_, err := run(t, cmd, "--host", srv.URL, "--token", "referee")
			require.NoError(t, err)
			require.Len(t, *seen, 1)
			assert.Equal(t, path, (*seen)[0].Path)
			assert.Equal(t, "referee", (*seen)[0].Body["serverToken"])
		})
	}
}

func TestMatch_Get(t *testing.T) {
	srv, seen := newTestServer(t, http.StatusOK, `{"status":"active"}`)

	out, err := run(t, "match", "--host", srv.URL, "--token", "")
	require.NoError(t, err)
	require.Len(t, *seen, 1)
	assert.Equal(t, http.MethodGet, (*seen)[0].Method)
	assert.Contains(t, out, `"status": "active"`)
}

func TestServerErrorIsReturned(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusConflict, `{"error":"match is full"}`)

	_, err := run(t, "start", "--host", srv.URL, "--token", "referee")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "match is full", apiErr.Message)
}

func TestPrivilegedRequiresToken(t *testing.T) {
	srv, seen := newTestServer(t, http.StatusOK, `{}`)

	_, err := run(t, "end", "--host", srv.URL, "--token", "")
	assert.ErrorContains(t, err, "server token is required")
	assert.Empty(t, *seen)
}

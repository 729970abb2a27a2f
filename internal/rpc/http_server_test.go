package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RamXX/tminus-sub002/internal/types"
)

func newTestHTTPServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	s, _ := newTestServer(t)
	h := NewHTTPServer(s, "127.0.0.1:0", token)
	ts := httptest.NewServer(h.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHTTPApplyDelta(t *testing.T) {
	ts := newTestHTTPServer(t, "")
	start := time.Date(2026, 4, 13, 9, 0, 0, 0, time.UTC)

	resp := postJSON(t, ts.URL+"/v1/applyProviderDelta", Request{
		UserID: "alice",
		Args:   mustMarshal(t, deltaArgs("acct-1", "orig-1", "Standup", start, start.Add(time.Hour))),
	}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.Contains(t, string(envelope.Data), "Standup")
}

func TestHTTPUnknownPathIs404(t *testing.T) {
	ts := newTestHTTPServer(t, "")
	resp := postJSON(t, ts.URL+"/v1/noSuchOperation", Request{UserID: "alice"}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPValidationErrorIs500(t *testing.T) {
	ts := newTestHTTPServer(t, "")
	resp := postJSON(t, ts.URL+"/v1/applyProviderDelta", Request{
		UserID: "alice",
		Args:   mustMarshal(t, types.ProviderDelta{Type: "bogus"}),
	}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body["error"])
}

func TestHTTPTokenAuth(t *testing.T) {
	ts := newTestHTTPServer(t, "secret")

	resp := postJSON(t, ts.URL+"/v1/listCanonicalEvents", Request{UserID: "alice"}, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/v1/listCanonicalEvents", Request{UserID: "alice"},
		map[string]string{"Authorization": "Bearer secret"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPHealthEndpoints(t *testing.T) {
	ts := newTestHTTPServer(t, "secret")
	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

package httpstream

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/mcp/dispatcher"
	"goa.design/mcpcore/mcp/registry"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	d := dispatcher.New(context.Background(), dispatcher.ServerInfo{Name: "core", Version: "0.0.0"}, nil)
	require.NoError(t, d.Tools.Register(&registry.Tool{
		Name: "echo",
		Invoke: func(_ context.Context, input jsonvalue.Value) (jsonvalue.Value, error) {
			return input, nil
		},
	}))
	tr := New(d, nil, cfg)
	mux := http.NewServeMux()
	tr.Mount(mux)
	return httptest.NewServer(mux)
}

func post(t *testing.T, url, sessionID string, body map[string]any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestInitializeMintsSessionIDHeader(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	resp := post(t, srv.URL+"/mcp", "", map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": map[string]any{"capabilities": map[string]any{}},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionID := resp.Header.Get("Mcp-Session-Id")
	require.Len(t, sessionID, 32)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	result := body["result"].(map[string]any)
	require.NotEmpty(t, result["serverInfo"])
}

func TestMissingSessionHeaderIsBadRequest(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	resp := post(t, srv.URL+"/mcp", "", map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/list",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	resp := post(t, srv.URL+"/mcp", "deadbeef", map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/list",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetOnMCPPathIsMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/mcp")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, "POST", resp.Header.Get("Allow"))
}

func TestFullRoundTripListsRegisteredTool(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	initResp := post(t, srv.URL+"/mcp", "", map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": map[string]any{"capabilities": map[string]any{}},
	})
	sessionID := initResp.Header.Get("Mcp-Session-Id")
	initResp.Body.Close()

	resp := post(t, srv.URL+"/mcp", sessionID, map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": "tools/list",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	result := body["result"].(map[string]any)
	tools := result["tools"].([]any)
	require.Len(t, tools, 1)
}

func TestMissingBearerTokenIsUnauthorized(t *testing.T) {
	srv := newTestServer(t, Config{BearerToken: "secret"})
	defer srv.Close()

	resp := post(t, srv.URL+"/mcp", "", map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

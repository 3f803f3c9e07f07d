package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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

// readEndpointEvent connects to the SSE stream and returns the session id
// carried in the first "endpoint" event, along with a reader positioned just
// after that event's data line.
func readEndpointEvent(t *testing.T, baseURL string) (string, *bufio.Reader, func()) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, baseURL+"/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	_, _ = reader.ReadString('\n') // "event: endpoint"
	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	dataLine = strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")
	parts := strings.SplitN(dataLine, "session_id=", 2)
	require.Len(t, parts, 2)
	return parts[1], reader, func() { resp.Body.Close() }
}

func TestGetStreamSendsEndpointEventWithSessionID(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	sessionID, _, closeStream := readEndpointEvent(t, srv.URL)
	defer closeStream()
	require.Len(t, sessionID, 32)
}

func TestPostDeliversReplyInBodyAndOverStream(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	sessionID, stream, closeStream := readEndpointEvent(t, srv.URL)
	defer closeStream()

	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	resp, err := http.Post(srv.URL+"/messages?session_id="+sessionID, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var direct map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&direct))
	require.NotNil(t, direct["result"])

	for {
		line, err := stream.ReadString('\n')
		require.NoError(t, err)
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var streamed map[string]any
		require.NoError(t, json.Unmarshal([]byte(data), &streamed))
		require.Equal(t, direct["id"], streamed["id"])
		require.NotNil(t, streamed["result"])
		break
	}
}

func TestPostWithoutSessionIDIsBadRequest(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	resp, err := http.Post(srv.URL+"/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostWithUnknownSessionIsNotFound(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	resp, err := http.Post(srv.URL+"/messages?session_id=deadbeef", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostOnSSEPathIsMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sse", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, "GET", resp.Header.Get("Allow"))
}

func TestGetOnMessagePathIsMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Config{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, "POST", resp.Header.Get("Allow"))
}

func TestHeartbeatFiresOnShortInterval(t *testing.T) {
	srv := newTestServer(t, Config{HeartbeatInterval: 20 * time.Millisecond})
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	_, _ = reader.ReadString('\n') // endpoint event line
	_, _ = reader.ReadString('\n') // endpoint data line
	_, _ = reader.ReadString('\n') // blank line

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: heartbeat\n", line)
}

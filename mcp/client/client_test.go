package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/mcp/dispatcher"
	"goa.design/mcpcore/mcp/registry"
	"goa.design/mcpcore/mcp/transport/httpstream"
	"goa.design/mcpcore/mcp/wire"
)

func TestPendingTableResolveDeliversResultToWaiter(t *testing.T) {
	p := newPendingTable()
	id := p.nextID()
	ch := p.register(id)

	out := jsonvalue.NewObject()
	out.Set("ok", jsonvalue.Bool(true))
	result := jsonvalue.FromObject(out)

	go func() {
		msg, err := wire.NewResultMessage(wire.StringID(id), result)
		require.NoError(t, err)
		p.resolve(msg)
	}()

	got, err := p.wait(context.Background(), id, ch, time.Second)
	require.NoError(t, err)
	ok, _ := got.Get("ok")
	b, _ := ok.Bool()
	require.True(t, b)
}

func TestPendingTableWaitTimesOut(t *testing.T) {
	p := newPendingTable()
	id := p.nextID()
	ch := p.register(id)

	_, err := p.wait(context.Background(), id, ch, 10*time.Millisecond)
	require.Error(t, err)
}

func TestHTTPTransportRoundTripsThroughStreamableServer(t *testing.T) {
	d := dispatcher.New(context.Background(), dispatcher.ServerInfo{Name: "core", Version: "0.0.0"}, nil)
	require.NoError(t, d.Tools.Register(&registry.Tool{
		Name: "echo",
		Invoke: func(_ context.Context, input jsonvalue.Value) (jsonvalue.Value, error) {
			return input, nil
		},
	}))
	tr := httpstream.New(d, nil, httpstream.Config{})
	mux := http.NewServeMux()
	tr.Mount(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	httpTransport, err := NewHTTPTransport(context.Background(), HTTPOptions{Endpoint: ts.URL + "/mcp"})
	require.NoError(t, err)
	defer httpTransport.Close()

	schemas, err := ToolSchemas(context.Background(), httpTransport)
	require.NoError(t, err)
	require.NotNil(t, schemas)

	args := jsonvalue.NewObject()
	args.Set("x", jsonvalue.Int(1))
	result, err := CallTool(context.Background(), httpTransport, schemas, "echo", jsonvalue.FromObject(args))
	require.NoError(t, err)
	content, ok := result.Get("content")
	require.True(t, ok)
	blocks, ok := content.Array()
	require.True(t, ok)
	require.Len(t, blocks, 1)
	text, _ := blocks[0].Get("text")
	s, _ := text.String()
	require.Contains(t, s, `"x":1`)
}

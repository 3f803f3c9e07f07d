package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/mcp/wire"
)

func TestHubAddRemoveTracksLen(t *testing.T) {
	h := NewHub()
	require.Equal(t, 0, h.Len())

	s1 := New("sess-1", func(context.Context, *wire.Message) error { return nil })
	s2 := New("sess-2", func(context.Context, *wire.Message) error { return nil })
	h.Add(s1)
	h.Add(s2)
	require.Equal(t, 2, h.Len())

	h.Remove("sess-1")
	require.Equal(t, 1, h.Len())
}

func TestHubBroadcastReachesEverySession(t *testing.T) {
	h := NewHub()

	var got1, got2 []string
	s1 := New("sess-1", func(_ context.Context, msg *wire.Message) error {
		got1 = append(got1, msg.Method)
		return nil
	})
	s2 := New("sess-2", func(_ context.Context, msg *wire.Message) error {
		got2 = append(got2, msg.Method)
		return nil
	})
	h.Add(s1)
	h.Add(s2)

	h.Broadcast(context.Background(), "notifications/tools/list_changed", jsonvalue.FromObject(jsonvalue.NewObject()))

	require.Equal(t, []string{"notifications/tools/list_changed"}, got1)
	require.Equal(t, []string{"notifications/tools/list_changed"}, got2)
}

func TestHubBroadcastSkipsRemovedSessions(t *testing.T) {
	h := NewHub()

	var got []string
	s := New("sess-1", func(_ context.Context, msg *wire.Message) error {
		got = append(got, msg.Method)
		return nil
	})
	h.Add(s)
	h.Remove("sess-1")

	h.Broadcast(context.Background(), "notifications/resources/list_changed", jsonvalue.FromObject(jsonvalue.NewObject()))

	require.Empty(t, got)
}

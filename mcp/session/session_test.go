package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/mcp/wire"
)

func TestSetCapabilitiesDerivesSupportFlags(t *testing.T) {
	s := New("sess-1", func(context.Context, *wire.Message) error { return nil })

	caps := jsonvalue.NewObject()
	caps.Set("sampling", jsonvalue.FromObject(jsonvalue.NewObject()))
	caps.Set("roots", jsonvalue.FromObject(jsonvalue.NewObject()))
	s.SetCapabilities(jsonvalue.FromObject(caps))

	require.True(t, s.SupportsSampling())
	require.True(t, s.SupportsRoots())
	require.False(t, s.SupportsElicitation())
}

func TestSendRequestResolvesOnMatchingResponse(t *testing.T) {
	var captured *wire.Message
	s := New("sess-1", func(_ context.Context, msg *wire.Message) error {
		captured = msg
		return nil
	})

	done := make(chan struct{})
	var result jsonvalue.Value
	var sendErr error
	go func() {
		defer close(done)
		result, sendErr = s.SendRequest(context.Background(), "sampling/createMessage", jsonvalue.Null(), time.Second)
	}()

	require.Eventually(t, func() bool { return captured != nil }, time.Second, time.Millisecond)
	require.Equal(t, "sampling/createMessage", captured.Method)
	require.Equal(t, "srv_1", captured.IDString())

	resObj := jsonvalue.NewObject()
	resObj.Set("role", jsonvalue.String("assistant"))
	resp, err := wire.NewResultMessage(captured.ID, jsonvalue.FromObject(resObj))
	require.NoError(t, err)
	require.True(t, s.HandleResponse(resp))

	<-done
	require.NoError(t, sendErr)
	obj, ok := result.Object()
	require.True(t, ok)
	role, _ := mustGet(obj, "role").String()
	require.Equal(t, "assistant", role)
}

func mustGet(o *jsonvalue.Object, key string) jsonvalue.Value {
	v, _ := o.Get(key)
	return v
}

func TestSendRequestReturnsClientErrorOnPeerError(t *testing.T) {
	var captured *wire.Message
	s := New("sess-1", func(_ context.Context, msg *wire.Message) error {
		captured = msg
		return nil
	})

	done := make(chan struct{})
	var sendErr error
	go func() {
		defer close(done)
		_, sendErr = s.SendRequest(context.Background(), "elicitation/create", jsonvalue.Null(), time.Second)
	}()

	require.Eventually(t, func() bool { return captured != nil }, time.Second, time.Millisecond)
	errResp := wire.NewErrorMessage(captured.ID, -32602, "invalid params", jsonvalue.Null())
	require.True(t, s.HandleResponse(errResp))

	<-done
	require.Error(t, sendErr)
	require.Equal(t, mcperr.ClientError, mcperr.KindOf(sendErr))
	require.Equal(t, -32602, mcperr.Code(sendErr))
}

func TestSendRequestTimesOut(t *testing.T) {
	s := New("sess-1", func(context.Context, *wire.Message) error { return nil })
	_, err := s.SendRequest(context.Background(), "roots/list", jsonvalue.Null(), 10*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, mcperr.RequestTimeout, mcperr.KindOf(err))
}

func TestHandleResponseDropsUnmatchedResponse(t *testing.T) {
	s := New("sess-1", func(context.Context, *wire.Message) error { return nil })
	resp, err := wire.NewResultMessage(wire.StringID("srv_999"), jsonvalue.Null())
	require.NoError(t, err)
	require.False(t, s.HandleResponse(resp))
}

func TestHandleResponseIgnoresRequestsAndNotifications(t *testing.T) {
	s := New("sess-1", func(context.Context, *wire.Message) error { return nil })
	req, err := wire.NewRequest(wire.StringID("1"), "ping", jsonvalue.Null())
	require.NoError(t, err)
	require.False(t, s.HandleResponse(req))

	note, err := wire.NewNotification("notifications/progress", jsonvalue.Null())
	require.NoError(t, err)
	require.False(t, s.HandleResponse(note))
}

func TestPutGetRoundTripsSessionState(t *testing.T) {
	s := New("sess-1", func(context.Context, *wire.Message) error { return nil })
	_, ok := s.Get("last-progress-token")
	require.False(t, ok)

	s.Put("last-progress-token", "tok-1")
	v, ok := s.Get("last-progress-token")
	require.True(t, ok)
	require.Equal(t, "tok-1", v)
}

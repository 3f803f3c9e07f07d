package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"goa.design/mcpcore/internal/jsonvalue"
)

func TestClassifyRequestResponseNotification(t *testing.T) {
	req, err := NewRequest(StringID("1"), "ping", jsonvalue.Null())
	require.NoError(t, err)
	require.True(t, req.IsRequest())
	require.False(t, req.IsResponse())
	require.False(t, req.IsNotification())

	resp, err := NewResultMessage(StringID("1"), jsonvalue.Null())
	require.NoError(t, err)
	require.False(t, resp.IsRequest())
	require.True(t, resp.IsResponse())
	require.False(t, resp.IsNotification())

	note, err := NewNotification("notifications/progress", jsonvalue.Null())
	require.NoError(t, err)
	require.False(t, note.IsRequest())
	require.False(t, note.IsResponse())
	require.True(t, note.IsNotification())
}

func TestStringIDRoundTrips(t *testing.T) {
	id := StringID("req-42")
	m, err := NewRequest(id, "tools/call", jsonvalue.Null())
	require.NoError(t, err)

	data, err := m.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, "req-42", decoded.IDString())
	require.JSONEq(t, `"req-42"`, string(decoded.ID))
}

func TestIntegerIDRoundTripsAsIntegerOnTheWire(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`)
	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "7", decoded.IDString())

	re := NewErrorMessage(decoded.ID, -32601, "method not found", jsonvalue.Null())
	out, err := re.Encode()
	require.NoError(t, err)
	require.Contains(t, string(out), `"id":7`)
	require.NotContains(t, string(out), `"id":"7"`)
}

func TestParamsValueDecodesObjectPreservingOrder(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":"1","method":"tools/call","params":{"z":1,"a":2}}`)
	m, err := Decode(raw)
	require.NoError(t, err)

	params, err := m.ParamsValue()
	require.NoError(t, err)
	obj, ok := params.Object()
	require.True(t, ok)
	require.Equal(t, []string{"z", "a"}, obj.Keys())
}

func TestParamsValueOfAbsentParamsIsEmptyObject(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":"1","method":"ping"}`)
	m, err := Decode(raw)
	require.NoError(t, err)

	params, err := m.ParamsValue()
	require.NoError(t, err)
	require.True(t, params.IsObject())
	obj, ok := params.Object()
	require.True(t, ok)
	require.Equal(t, 0, obj.Len())
}

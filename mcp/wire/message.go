// Package wire defines the JSON-RPC 2.0 message envelope shared by the
// session layer, dispatcher, and every transport.
package wire

import (
	"encoding/json"
	"strings"

	"goa.design/mcpcore/internal/jsonvalue"
)

// Message is a JSON-RPC 2.0 envelope. ID is kept as raw JSON so responses
// can echo back whatever wire type (string or number) the peer used;
// internal correlation always works off the stringified form (see
// IDString). Params/Result are kept as raw JSON too, so a message that is
// only being routed (not inspected) passes through byte-for-byte, which is
// what keeps object key order intact across proxies like the dispatcher
// that do not need to look inside every field.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsRequest reports whether m has both an id and a method.
func (m *Message) IsRequest() bool { return len(m.ID) > 0 && m.Method != "" }

// IsResponse reports whether m has an id but no method.
func (m *Message) IsResponse() bool { return len(m.ID) > 0 && m.Method == "" }

// IsNotification reports whether m has a method but no id.
func (m *Message) IsNotification() bool { return len(m.ID) == 0 && m.Method != "" }

// IDString normalizes ID (a JSON string or number) to a string for internal
// pending-table lookups. Quoted JSON strings have their quotes stripped;
// everything else (numbers) is used verbatim.
func (m *Message) IDString() string {
	return RawIDToString(m.ID)
}

// RawIDToString normalizes a raw JSON id value (string or number) to a
// plain string for internal correlation.
func RawIDToString(id json.RawMessage) string {
	s := strings.TrimSpace(string(id))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unquoted string
		if err := json.Unmarshal(id, &unquoted); err == nil {
			return unquoted
		}
	}
	return s
}

// StringID encodes s as a JSON string id.
func StringID(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// ParamsValue decodes Params into a jsonvalue.Value for structured access.
// An empty/absent Params decodes to an empty object, matching how a
// dispatcher wants to look up optional fields like _meta without a nil
// check at every call site.
func (m *Message) ParamsValue() (jsonvalue.Value, error) {
	return decodeOrEmptyObject(m.Params)
}

// ResultValue decodes Result into a jsonvalue.Value.
func (m *Message) ResultValue() (jsonvalue.Value, error) {
	return decodeOrEmptyObject(m.Result)
}

func decodeOrEmptyObject(raw json.RawMessage) (jsonvalue.Value, error) {
	if len(raw) == 0 {
		return jsonvalue.FromObject(jsonvalue.NewObject()), nil
	}
	var v jsonvalue.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return jsonvalue.Value{}, err
	}
	return v, nil
}

// SetParams encodes v as the message's Params.
func (m *Message) SetParams(v jsonvalue.Value) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	m.Params = data
	return nil
}

// SetResult encodes v as the message's Result.
func (m *Message) SetResult(v jsonvalue.Value) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	m.Result = data
	return nil
}

// NewRequest builds a request message.
func NewRequest(id json.RawMessage, method string, params jsonvalue.Value) (*Message, error) {
	m := &Message{JSONRPC: "2.0", ID: id, Method: method}
	if err := m.SetParams(params); err != nil {
		return nil, err
	}
	return m, nil
}

// NewNotification builds a notification message (no id).
func NewNotification(method string, params jsonvalue.Value) (*Message, error) {
	m := &Message{JSONRPC: "2.0", Method: method}
	if err := m.SetParams(params); err != nil {
		return nil, err
	}
	return m, nil
}

// NewResultMessage builds a success response.
func NewResultMessage(id json.RawMessage, result jsonvalue.Value) (*Message, error) {
	m := &Message{JSONRPC: "2.0", ID: id}
	if err := m.SetResult(result); err != nil {
		return nil, err
	}
	return m, nil
}

// NewErrorMessage builds an error response.
func NewErrorMessage(id json.RawMessage, code int, message string, data jsonvalue.Value) *Message {
	var raw json.RawMessage
	if !data.IsNull() {
		raw, _ = data.MarshalJSON()
	}
	return &Message{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: raw}}
}

// Decode parses raw JSON-RPC bytes into a Message.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Encode serializes m to compact JSON.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

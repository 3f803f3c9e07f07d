package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/mcp/wire"
)

// WebSocketOptions configures WebSocketTransport.
type WebSocketOptions struct {
	// URL is a ws:// or wss:// address.
	URL             string
	Header          map[string][]string
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	InitTimeout     time.Duration
	RequestTimeout  time.Duration
}

// WebSocketTransport implements Transport over a single full-duplex
// WebSocket connection, one JSON-RPC message per frame in both directions.
type WebSocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	pending *pendingTable

	requestTimeout time.Duration
	closeOnce      sync.Once
	closed         chan struct{}
}

// NewWebSocketTransport dials url and performs the initialize handshake.
func NewWebSocketTransport(ctx context.Context, opts WebSocketOptions) (*WebSocketTransport, error) {
	if opts.URL == "" {
		return nil, mcperr.New(mcperr.ValidationError, "url is required")
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, err
	}

	t := &WebSocketTransport{
		conn:           conn,
		pending:        newPendingTable(),
		requestTimeout: opts.RequestTimeout,
		closed:         make(chan struct{}),
	}
	go t.readLoop()

	initCtx := ctx
	if opts.InitTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, opts.InitTimeout)
		defer cancel()
	}
	if _, err := t.Request(initCtx, "initialize", initializeParams(opts.ProtocolVersion, opts.ClientName, opts.ClientVersion)); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

// Request sends one JSON-RPC frame and waits for its matching reply frame.
func (t *WebSocketTransport) Request(ctx context.Context, method string, params jsonvalue.Value) (jsonvalue.Value, error) {
	id := t.pending.nextID()
	ch := t.pending.register(id)

	msg, err := wire.NewRequest(wire.StringID(id), method, params)
	if err != nil {
		t.pending.remove(id)
		return jsonvalue.Value{}, err
	}
	data, err := msg.Encode()
	if err != nil {
		t.pending.remove(id)
		return jsonvalue.Value{}, err
	}

	t.writeMu.Lock()
	err = t.conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		t.pending.remove(id)
		return jsonvalue.Value{}, err
	}

	if t.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.requestTimeout)
		defer cancel()
	}
	return t.pending.wait(ctx, id, ch, 0)
}

func (t *WebSocketTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.pending.failAll(mcperr.Wrap(mcperr.TransportError, "websocket transport closed", err))
			return
		}
		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.IsResponse() {
			t.pending.resolve(&msg)
		}
	}
}

// Close closes the underlying WebSocket connection.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/mcp/wire"
)

// HTTPOptions configures HTTPTransport.
type HTTPOptions struct {
	// Endpoint is the server's streamable-HTTP POST route.
	Endpoint        string
	Client          *http.Client
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	// BearerToken, if set, is sent as "Authorization: Bearer <token>".
	BearerToken string
	InitTimeout time.Duration
	// RequestTimeout bounds each individual Request call; 0 disables it.
	RequestTimeout time.Duration
}

// HTTPTransport implements Transport over the single-POST streamable-HTTP
// server transport (mcp/transport/httpstream): one HTTP round trip per
// request, correlated to a session via the Mcp-Session-Id header learned
// from initialize.
type HTTPTransport struct {
	opts HTTPOptions

	mu        sync.RWMutex
	sessionID string
}

// NewHTTPTransport dials endpoint and performs the initialize handshake.
func NewHTTPTransport(ctx context.Context, opts HTTPOptions) (*HTTPTransport, error) {
	if opts.Endpoint == "" {
		return nil, mcperr.New(mcperr.ValidationError, "endpoint is required")
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	t := &HTTPTransport{opts: opts}

	initCtx := ctx
	if opts.InitTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, opts.InitTimeout)
		defer cancel()
	}
	if _, err := t.Request(initCtx, "initialize", initializeParams(opts.ProtocolVersion, opts.ClientName, opts.ClientVersion)); err != nil {
		return nil, fmt.Errorf("mcp initialize failed: %w", err)
	}
	return t, nil
}

// Request issues one HTTP round trip carrying method/params and returns the
// decoded result.
func (t *HTTPTransport) Request(ctx context.Context, method string, params jsonvalue.Value) (jsonvalue.Value, error) {
	if t.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RequestTimeout)
		defer cancel()
	}

	id := wire.StringID(newCallID())
	msg, err := wire.NewRequest(id, method, params)
	if err != nil {
		return jsonvalue.Value{}, err
	}
	body, err := msg.Encode()
	if err != nil {
		return jsonvalue.Value{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return jsonvalue.Value{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if sid := t.currentSessionID(); sid != "" {
		httpReq.Header.Set("Mcp-Session-Id", sid)
	}
	if t.opts.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.opts.BearerToken)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := t.opts.Client.Do(httpReq)
	if err != nil {
		return jsonvalue.Value{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return jsonvalue.Value{}, mcperr.Newf(mcperr.TransportError, "mcp http status %d", resp.StatusCode)
	}

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	var respMsg wire.Message
	if err := json.NewDecoder(resp.Body).Decode(&respMsg); err != nil {
		return jsonvalue.Value{}, err
	}
	if respMsg.Error != nil {
		var data jsonvalue.Value
		if len(respMsg.Error.Data) > 0 {
			_ = data.UnmarshalJSON(respMsg.Error.Data)
		}
		return jsonvalue.Value{}, mcperr.NewClientError(respMsg.Error.Code, respMsg.Error.Message, data)
	}
	return respMsg.ResultValue()
}

// Close is a no-op; the transport holds no standing connection.
func (t *HTTPTransport) Close() error { return nil }

func (t *HTTPTransport) currentSessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/mcp/wire"
)

// SSEOptions configures SSETransport.
type SSEOptions struct {
	// BaseURL is the server's origin, e.g. "http://localhost:8080".
	BaseURL string
	// SSEPath and MessagePath mirror mcp/transport/sse.Config; defaults
	// "/sse" and "/messages".
	SSEPath         string
	MessagePath     string
	Client          *http.Client
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	RequestTimeout  time.Duration
}

// SSETransport implements Transport against the dual-endpoint SSE server
// transport (mcp/transport/sse): it opens the GET event stream once,
// remembers the session id carried by the first "endpoint" event, and posts
// subsequent requests to the message endpoint with that id.
type SSETransport struct {
	opts      SSEOptions
	client    *http.Client
	pending   *pendingTable
	closeOnce sync.Once
	closed    chan struct{}

	endpointReady chan struct{}
	mu            sync.Mutex
	messageURL    string
	streamErr     error
}

// NewSSETransport connects to the server's event stream, waits for the
// endpoint handshake, and performs the initialize handshake.
func NewSSETransport(ctx context.Context, opts SSEOptions) (*SSETransport, error) {
	if opts.BaseURL == "" {
		return nil, mcperr.New(mcperr.ValidationError, "base URL is required")
	}
	if opts.SSEPath == "" {
		opts.SSEPath = "/sse"
	}
	if opts.MessagePath == "" {
		opts.MessagePath = "/messages"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}

	t := &SSETransport{
		opts:          opts,
		client:        opts.Client,
		pending:       newPendingTable(),
		closed:        make(chan struct{}),
		endpointReady: make(chan struct{}),
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	resp, err := t.openStream(streamCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	go t.readLoop(resp.Body, cancel)
	go func() {
		select {
		case <-t.closed:
		case <-streamCtx.Done():
		}
		cancel()
	}()

	select {
	case <-t.endpointReady:
	case <-time.After(10 * time.Second):
		_ = t.Close()
		return nil, mcperr.New(mcperr.TransportError, "timed out waiting for SSE endpoint event")
	case <-ctx.Done():
		_ = t.Close()
		return nil, ctx.Err()
	}

	if _, err := t.Request(ctx, "initialize", initializeParams(opts.ProtocolVersion, opts.ClientName, opts.ClientVersion)); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("mcp initialize failed: %w", err)
	}
	return t, nil
}

func (t *SSETransport) openStream(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.opts.BaseURL+t.opts.SSEPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, mcperr.Newf(mcperr.TransportError, "mcp sse status %d", resp.StatusCode)
	}
	return resp, nil
}

func (t *SSETransport) readLoop(body io.ReadCloser, cancel context.CancelFunc) {
	defer cancel()
	defer body.Close()

	reader := bufio.NewReader(body)
	once := sync.Once{}
	for {
		event, data, err := readSSEEvent(reader)
		if err != nil {
			t.mu.Lock()
			t.streamErr = err
			t.mu.Unlock()
			t.pending.failAll(mcperr.Wrap(mcperr.TransportError, "mcp sse stream closed", err))
			return
		}
		switch event {
		case "endpoint":
			t.mu.Lock()
			t.messageURL = t.opts.BaseURL + strings.TrimSpace(string(data))
			t.mu.Unlock()
			once.Do(func() { close(t.endpointReady) })
		case "heartbeat":
			continue
		default:
			var msg wire.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.IsResponse() {
				t.pending.resolve(&msg)
			}
		}
	}
}

// readSSEEvent reads one "event:"/"data:" frame, returning its event name
// (default "message") and raw data payload.
func readSSEEvent(reader *bufio.Reader) (string, []byte, error) {
	var event string
	var data []byte
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event == "" && len(data) == 0 {
				continue
			}
			if event == "" {
				event = "message"
			}
			return event, data, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, []byte(strings.TrimPrefix(after, " "))...)
			continue
		}
	}
}

// Request posts method/params to the message endpoint and waits for the
// matching response, delivered either in the POST body or over the stream.
func (t *SSETransport) Request(ctx context.Context, method string, params jsonvalue.Value) (jsonvalue.Value, error) {
	t.mu.Lock()
	msgURL := t.messageURL
	streamErr := t.streamErr
	t.mu.Unlock()
	if msgURL == "" {
		return jsonvalue.Value{}, mcperr.New(mcperr.TransportError, "sse endpoint not yet established")
	}
	if streamErr != nil {
		return jsonvalue.Value{}, mcperr.Wrap(mcperr.TransportError, "sse stream is dead", streamErr)
	}

	if t.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RequestTimeout)
		defer cancel()
	}

	id := t.pending.nextID()
	ch := t.pending.register(id)
	msg, err := wire.NewRequest(wire.StringID(id), method, params)
	if err != nil {
		t.pending.remove(id)
		return jsonvalue.Value{}, err
	}
	body, err := msg.Encode()
	if err != nil {
		t.pending.remove(id)
		return jsonvalue.Value{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, msgURL, bytes.NewReader(body))
	if err != nil {
		t.pending.remove(id)
		return jsonvalue.Value{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.pending.remove(id)
		return jsonvalue.Value{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.pending.remove(id)
		raw, _ := io.ReadAll(resp.Body)
		return jsonvalue.Value{}, mcperr.Newf(mcperr.TransportError, "mcp sse post status %d: %s", resp.StatusCode, string(raw))
	}

	var direct wire.Message
	if err := json.NewDecoder(resp.Body).Decode(&direct); err == nil && direct.IsResponse() {
		t.pending.remove(id)
		if direct.Error != nil {
			var data jsonvalue.Value
			if len(direct.Error.Data) > 0 {
				_ = data.UnmarshalJSON(direct.Error.Data)
			}
			return jsonvalue.Value{}, mcperr.NewClientError(direct.Error.Code, direct.Error.Message, data)
		}
		return direct.ResultValue()
	}

	return t.pending.wait(ctx, id, ch, 0)
}

// Close terminates the background stream reader.
func (t *SSETransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
	})
	return nil
}


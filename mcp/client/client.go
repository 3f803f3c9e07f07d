// Package client provides outbound MCP transports: HTTP long-poll, SSE,
// subprocess stdio, and WebSocket. Each implements Transport, the shared
// contract used by toolset adapters to invoke a remote server's tools,
// resources, and prompts without depending on the wire details of any one
// transport.
package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/mcp/wire"
)

// Transport issues a JSON-RPC request and waits for its matching response.
type Transport interface {
	Request(ctx context.Context, method string, params jsonvalue.Value) (jsonvalue.Value, error)
	Close() error
}

// StreamingTransport additionally supports chunked delivery: onEvent is
// called for every intermediate event the server emits before the final
// response, which RequestStream also returns.
type StreamingTransport interface {
	Transport
	RequestStream(ctx context.Context, method string, params jsonvalue.Value, onEvent func(jsonvalue.Value)) (jsonvalue.Value, error)
}

// DefaultProtocolVersion is the MCP protocol version sent on initialize when
// the caller does not override it.
const DefaultProtocolVersion = "2025-06-18"

var callIDCounter uint64

// newCallID mints a process-unique request id for transports that do not
// keep their own pendingTable (e.g. HTTPTransport, which correlates purely
// through one HTTP round trip per call).
func newCallID() string {
	n := atomic.AddUint64(&callIDCounter, 1)
	return "call_" + uitoa(n)
}

// pendingTable correlates minted request ids with their one-shot result
// channel. It mirrors the session layer's own pending-request bookkeeping
// (mcp/session.Session) since a client transport is, from the wire's
// perspective, just the other half of the same correlation problem.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]chan pendingResult
	counter uint64
}

type pendingResult struct {
	value jsonvalue.Value
	err   error
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]chan pendingResult)}
}

func (p *pendingTable) nextID() string {
	n := atomic.AddUint64(&p.counter, 1)
	return "cli_" + uitoa(n)
}

func (p *pendingTable) register(id string) chan pendingResult {
	ch := make(chan pendingResult, 1)
	p.mu.Lock()
	p.entries[id] = ch
	p.mu.Unlock()
	return ch
}

func (p *pendingTable) remove(id string) {
	p.mu.Lock()
	delete(p.entries, id)
	p.mu.Unlock()
}

// resolve delivers a response to its matching pending entry, if any. Late or
// unmatched responses are silently dropped, matching the session layer's
// behavior for the same situation.
func (p *pendingTable) resolve(msg *wire.Message) {
	id := msg.IDString()
	p.mu.Lock()
	ch, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	if msg.Error != nil {
		var data jsonvalue.Value
		if len(msg.Error.Data) > 0 {
			_ = data.UnmarshalJSON(msg.Error.Data)
		}
		ch <- pendingResult{err: mcperr.NewClientError(msg.Error.Code, msg.Error.Message, data)}
		return
	}
	result, err := msg.ResultValue()
	ch <- pendingResult{value: result, err: err}
}

// failAll delivers err to every still-pending entry, used when the
// underlying connection dies.
func (p *pendingTable) failAll(err error) {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]chan pendingResult)
	p.mu.Unlock()
	for _, ch := range entries {
		ch <- pendingResult{err: err}
	}
}

// wait blocks for id's result, timing out or honoring ctx cancellation the
// same way the server-side session does for server-initiated requests.
func (p *pendingTable) wait(ctx context.Context, id string, ch chan pendingResult, timeout time.Duration) (jsonvalue.Value, error) {
	defer p.remove(id)

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-ch:
		return res.value, res.err
	case <-timeoutCh:
		return jsonvalue.Value{}, mcperr.Newf(mcperr.RequestTimeout, "mcp request %s timed out", id)
	case <-ctx.Done():
		return jsonvalue.Value{}, ctx.Err()
	}
}

func uitoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// initializeParams builds the standard initialize request payload.
func initializeParams(protocolVersion, clientName, clientVersion string) jsonvalue.Value {
	if protocolVersion == "" {
		protocolVersion = DefaultProtocolVersion
	}
	if clientName == "" {
		clientName = "mcpcore"
	}
	if clientVersion == "" {
		clientVersion = "dev"
	}
	info := jsonvalue.NewObject()
	info.Set("name", jsonvalue.String(clientName))
	info.Set("version", jsonvalue.String(clientVersion))

	out := jsonvalue.NewObject()
	out.Set("protocolVersion", jsonvalue.String(protocolVersion))
	out.Set("clientInfo", jsonvalue.FromObject(info))
	out.Set("capabilities", jsonvalue.FromObject(jsonvalue.NewObject()))
	return jsonvalue.FromObject(out)
}

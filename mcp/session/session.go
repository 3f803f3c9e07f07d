// Package session tracks a single client connection's capabilities and its
// table of server-initiated requests awaiting a response.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/mcp/wire"
)

// DefaultTimeout is used by SendRequest when no timeout is supplied.
const DefaultTimeout = 30 * time.Second

// SendFunc delivers a message to the client over whatever transport owns
// the session.
type SendFunc func(ctx context.Context, msg *wire.Message) error

// Session manages server-initiated request/response correlation and client
// capability state for one connection. All methods are safe for concurrent
// use.
type Session struct {
	id   string
	send SendFunc

	capMu        sync.RWMutex
	capabilities jsonvalue.Value
	sampling     bool
	elicitation  bool
	roots        bool

	requestCounter uint64

	pendingMu sync.Mutex
	pending   map[string]chan pendingResult

	stateMu sync.RWMutex
	state   map[string]any
}

type pendingResult struct {
	result jsonvalue.Value
	err    error
}

// New returns a session identified by id, delivering server-initiated
// messages through send.
func New(id string, send SendFunc) *Session {
	return &Session{
		id:      id,
		send:    send,
		pending: make(map[string]chan pendingResult),
		state:   make(map[string]any),
	}
}

// ID returns the session's connection identifier.
func (s *Session) ID() string { return s.id }

// Notify sends a fire-and-forget notification to the client.
func (s *Session) Notify(ctx context.Context, method string, params jsonvalue.Value) error {
	msg, err := wire.NewNotification(method, params)
	if err != nil {
		return mcperr.Wrap(mcperr.InternalError, "failed to encode notification", err)
	}
	return s.send(ctx, msg)
}

// SetCapabilities records the capabilities object sent by the client during
// initialize, deriving the support flags queried by the dispatcher.
func (s *Session) SetCapabilities(caps jsonvalue.Value) {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	s.capabilities = caps
	s.sampling = hasObjectField(caps, "sampling")
	s.elicitation = hasObjectField(caps, "elicitation")
	s.roots = hasObjectField(caps, "roots")
}

func hasObjectField(caps jsonvalue.Value, name string) bool {
	field, ok := caps.Get(name)
	return ok && field.IsObject()
}

// Capabilities returns the raw capabilities object from initialize.
func (s *Session) Capabilities() jsonvalue.Value {
	s.capMu.RLock()
	defer s.capMu.RUnlock()
	return s.capabilities
}

// SupportsSampling reports whether the client advertised sampling support.
func (s *Session) SupportsSampling() bool {
	s.capMu.RLock()
	defer s.capMu.RUnlock()
	return s.sampling
}

// SupportsElicitation reports whether the client advertised elicitation support.
func (s *Session) SupportsElicitation() bool {
	s.capMu.RLock()
	defer s.capMu.RUnlock()
	return s.elicitation
}

// SupportsRoots reports whether the client advertised roots support.
func (s *Session) SupportsRoots() bool {
	s.capMu.RLock()
	defer s.capMu.RUnlock()
	return s.roots
}

// Get reads a value previously stashed with Put (e.g. per-session rate
// limiter state, last-seen progress token).
func (s *Session) Get(key string) (any, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	v, ok := s.state[key]
	return v, ok
}

// Put stashes a value under key for later retrieval by Get.
func (s *Session) Put(key string, v any) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state[key] = v
}

func (s *Session) nextRequestID() string {
	n := atomic.AddUint64(&s.requestCounter, 1)
	return "srv_" + uitoa(n)
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

// SendRequest sends method/params to the client and blocks until a matching
// response arrives, ctx is cancelled, or timeout elapses (DefaultTimeout if
// zero). The pending-table lock is never held while waiting, only while
// registering and removing the slot.
func (s *Session) SendRequest(ctx context.Context, method string, params jsonvalue.Value, timeout time.Duration) (jsonvalue.Value, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	id := s.nextRequestID()
	ch := make(chan pendingResult, 1)

	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	req, err := wire.NewRequest(wire.StringID(id), method, params)
	if err != nil {
		return jsonvalue.Null(), mcperr.Wrap(mcperr.InternalError, "failed to encode server-initiated request", err)
	}
	if err := s.send(ctx, req); err != nil {
		return jsonvalue.Null(), mcperr.Wrap(mcperr.TransportError, "failed to deliver server-initiated request", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.result, res.err
	case <-timer.C:
		return jsonvalue.Null(), mcperr.Newf(mcperr.RequestTimeout, "request %q timed out after %s", method, timeout)
	case <-ctx.Done():
		return jsonvalue.Null(), mcperr.Wrap(mcperr.RequestTimeout, "request "+method+" cancelled", ctx.Err())
	}
}

// HandleResponse delivers an incoming response to its waiting SendRequest
// call. It reports false if msg is not a response or matches no pending
// request (a late or duplicate delivery, which is dropped silently).
func (s *Session) HandleResponse(msg *wire.Message) bool {
	if !msg.IsResponse() {
		return false
	}
	id := msg.IDString()

	s.pendingMu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()
	if !ok {
		return false
	}

	if msg.Error != nil {
		data := jsonvalue.Null()
		if len(msg.Error.Data) > 0 {
			_ = json.Unmarshal(msg.Error.Data, &data)
		}
		ch <- pendingResult{err: mcperr.NewClientError(msg.Error.Code, msg.Error.Message, data)}
		return true
	}

	result, err := msg.ResultValue()
	if err != nil {
		ch <- pendingResult{err: mcperr.Wrap(mcperr.InternalError, "failed to decode response result", err)}
		return true
	}
	ch <- pendingResult{result: result}
	return true
}

// Package sse implements the dual-endpoint Server-Sent Events transport: a
// GET stream for server→client delivery and a POST endpoint for client→
// server ingress, correlated by a session id exchanged on the initial
// "endpoint" event.
package sse

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/obs"
	"goa.design/mcpcore/mcp/dispatcher"
	"goa.design/mcpcore/mcp/session"
	"goa.design/mcpcore/mcp/wire"
)

// maxQueueLen is the per-session outbound backlog before the GET stream is
// considered dead.
const maxQueueLen = 1000

// Config tunes the transport's paths and limits.
type Config struct {
	// SSEPath is the GET event-stream route. Defaults to "/sse".
	SSEPath string
	// MessagePath is the POST ingress route. Defaults to "/messages".
	MessagePath string
	// MaxActiveGETs bounds concurrently open event streams.
	MaxActiveGETs int
	// HeartbeatInterval controls how often the stream gets a heartbeat
	// event, whether or not other messages were sent. Defaults to 15s.
	HeartbeatInterval time.Duration
	RateLimit         rate.Limit
	RateBurst         int
	MaxBodyBytes      int64
}

func (c *Config) setDefaults() {
	if c.SSEPath == "" {
		c.SSEPath = "/sse"
	}
	if c.MessagePath == "" {
		c.MessagePath = "/messages"
	}
	if c.MaxActiveGETs <= 0 {
		c.MaxActiveGETs = 100
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 50
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 100
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 * 1024 * 1024
	}
}

// Transport serves MCP over the dual SSE/POST endpoint pair.
type Transport struct {
	D      *dispatcher.Dispatcher
	Obs    *obs.Provider
	Config Config

	mu         sync.Mutex
	sessions   map[string]*sseSession
	activeGETs int
}

type sseSession struct {
	id      string
	sess    *session.Session
	limiter *rate.Limiter

	mu    sync.Mutex
	cond  *sync.Cond
	queue []string
	dead  bool
}

func newSSESession(id string, limit rate.Limit, burst int) *sseSession {
	s := &sseSession{id: id, limiter: rate.NewLimiter(limit, burst)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// enqueue appends a pre-formatted SSE frame to the session's backlog and
// wakes the GET loop. Exceeding the backlog cap kills the stream; the
// session itself remains valid.
func (s *sseSession) enqueue(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return
	}
	if len(s.queue) >= maxQueueLen {
		s.dead = true
		s.cond.Broadcast()
		return
	}
	s.queue = append(s.queue, frame)
	s.cond.Broadcast()
}

func (s *sseSession) kill() {
	s.mu.Lock()
	s.dead = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// New constructs an SSE transport bound to d.
func New(d *dispatcher.Dispatcher, provider *obs.Provider, cfg Config) *Transport {
	if provider == nil {
		noop := obs.NewNoopProvider()
		provider = &noop
	}
	cfg.setDefaults()
	return &Transport{
		D:        d,
		Obs:      provider,
		Config:   cfg,
		sessions: make(map[string]*sseSession),
	}
}

// Mount registers the transport's two handlers on mux.
func (t *Transport) Mount(mux *http.ServeMux) {
	mux.HandleFunc(t.Config.SSEPath, t.handleSSEPath)
	mux.HandleFunc(t.Config.MessagePath, t.handleMessagePath)
}

func (t *Transport) handleSSEPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "only GET is supported on this endpoint")
		return
	}
	t.handleGet(w, r)
}

func (t *Transport) handleMessagePath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "only POST is supported on this endpoint")
		return
	}
	t.handlePost(w, r)
}

func (t *Transport) handleGet(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "internal error", "streaming not supported")
		return
	}

	t.mu.Lock()
	if t.activeGETs >= t.Config.MaxActiveGETs {
		t.mu.Unlock()
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "maximum number of active streams reached")
		return
	}
	t.activeGETs++
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.activeGETs--
		t.mu.Unlock()
	}()

	id, err := newSessionID()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error", "failed to mint session id")
		return
	}
	sess := newSSESession(id, t.Config.RateLimit, t.Config.RateBurst)
	sess.sess = session.New(id, func(_ context.Context, msg *wire.Message) error {
		data, err := msg.Encode()
		if err != nil {
			return err
		}
		sess.enqueue(dataFrame(data))
		return nil
	})

	t.mu.Lock()
	t.sessions[id] = sess
	t.mu.Unlock()
	t.D.Hub.Add(sess.sess)
	defer func() {
		t.mu.Lock()
		delete(t.sessions, id)
		t.mu.Unlock()
		t.D.Hub.Remove(id)
	}()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	endpointURL := fmt.Sprintf("%s?session_id=%s", t.Config.MessagePath, id)
	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpointURL); err != nil {
		return
	}
	flusher.Flush()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-r.Context().Done():
			sess.kill()
		case <-stop:
		}
	}()
	go t.heartbeatLoop(sess, stop)

	for {
		sess.mu.Lock()
		for len(sess.queue) == 0 && !sess.dead {
			sess.cond.Wait()
		}
		if sess.dead {
			sess.mu.Unlock()
			return
		}
		frame := sess.queue[0]
		sess.queue = sess.queue[1:]
		sess.mu.Unlock()

		if _, err := fmt.Fprint(w, frame); err != nil {
			sess.kill()
			return
		}
		flusher.Flush()
	}
}

func (t *Transport) heartbeatLoop(sess *sseSession, stop <-chan struct{}) {
	ticker := time.NewTicker(t.Config.HeartbeatInterval)
	defer ticker.Stop()
	counter := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			counter++
			sess.enqueue(fmt.Sprintf("event: heartbeat\ndata: %d\n\n", counter))
		}
	}
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "bad request", "session_id query parameter required")
		return
	}

	t.mu.Lock()
	sess, ok := t.sessions[id]
	t.mu.Unlock()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not found", "unknown session")
		return
	}
	if !sess.limiter.Allow() {
		writeJSONError(w, http.StatusTooManyRequests, "rate limited", "too many requests for this session")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, t.Config.MaxBodyBytes)
	var msg wire.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request", "malformed JSON-RPC message: "+err.Error())
		return
	}
	injectSessionMeta(&msg, id)

	if msg.IsResponse() {
		sess.sess.HandleResponse(&msg)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	resp := t.D.Dispatch(r.Context(), sess.sess, &msg)
	if resp == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	data, err := resp.Encode()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error", "failed to encode response")
		return
	}
	// Duplicate-delivery by design: the same reply is both enqueued for the
	// SSE stream and returned directly in the POST body.
	sess.enqueue(dataFrame(data))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func dataFrame(body []byte) string {
	return fmt.Sprintf("data: %s\n\n", body)
}

func injectSessionMeta(msg *wire.Message, sessionID string) {
	params, err := msg.ParamsValue()
	if err != nil {
		return
	}
	obj, ok := params.Object()
	if !ok {
		obj = jsonvalue.NewObject()
	}
	meta, ok := obj.Get("_meta")
	metaObj, isObj := meta.Object()
	if !ok || !isObj {
		metaObj = jsonvalue.NewObject()
	}
	if _, present := metaObj.Get("session_id"); !present {
		metaObj.Set("session_id", jsonvalue.String(sessionID))
	}
	obj.Set("_meta", jsonvalue.FromObject(metaObj))
	_ = msg.SetParams(jsonvalue.FromObject(obj))
}

func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, map[string]string{"error": errCode, "message": message})
}

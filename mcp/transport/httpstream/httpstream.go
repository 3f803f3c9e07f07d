// Package httpstream implements the single-POST-endpoint streamable HTTP
// server transport: one request in, one JSON-RPC message out, correlated by
// an Mcp-Session-Id header minted on initialize.
package httpstream

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
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

// Config tunes the transport's limits and optional auth/CORS behavior.
type Config struct {
	// Path is the single mounted route. Defaults to "/mcp".
	Path string
	// MaxSessions bounds the number of concurrently tracked sessions.
	MaxSessions int
	// MaxBodyBytes caps request payload size.
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RateLimit and RateBurst configure the per-session token bucket.
	RateLimit rate.Limit
	RateBurst int
	// BearerToken, if set, is required in "Authorization: Bearer <token>".
	BearerToken string
	// CORSOrigin, if set, is echoed back in Access-Control-Allow-Origin and
	// enables OPTIONS preflight handling.
	CORSOrigin string
}

func (c *Config) setDefaults() {
	if c.Path == "" {
		c.Path = "/mcp"
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 1000
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 * 1024 * 1024
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 50
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 100
	}
}

// Transport serves MCP over a single POST endpoint, one session per
// Mcp-Session-Id.
type Transport struct {
	D      *dispatcher.Dispatcher
	Obs    *obs.Provider
	Config Config

	mu       sync.Mutex
	sessions map[string]*trackedSession
}

type trackedSession struct {
	sess    *session.Session
	limiter *rate.Limiter
}

// New constructs a streamable HTTP transport bound to d.
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
		sessions: make(map[string]*trackedSession),
	}
}

// Mount registers the transport's handler on mux at Config.Path.
func (t *Transport) Mount(mux *http.ServeMux) {
	mux.HandleFunc(t.Config.Path, t.handle)
}

// Server wraps Mount in a ready-to-run *http.Server using Config's timeouts.
func (t *Transport) Server(addr string) *http.Server {
	mux := http.NewServeMux()
	t.Mount(mux)
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  t.Config.ReadTimeout,
		WriteTimeout: t.Config.WriteTimeout,
	}
}

func (t *Transport) handle(w http.ResponseWriter, r *http.Request) {
	if t.Config.CORSOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", t.Config.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "only POST is supported on this endpoint")
		return
	}

	if !t.authorize(r) {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, t.Config.MaxBodyBytes)
	var msg wire.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request", "malformed JSON-RPC message: "+err.Error())
		return
	}

	if msg.Method == "initialize" {
		t.handleInitialize(w, r, &msg)
		return
	}

	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "bad request", "Mcp-Session-Id header required")
		return
	}
	ts, ok := t.lookup(sessionID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not found", "unknown session")
		return
	}
	if !ts.limiter.Allow() {
		writeJSONError(w, http.StatusTooManyRequests, "rate limited", "too many requests for this session")
		return
	}

	t.dispatch(r.Context(), w, ts.sess, &msg)
}

func (t *Transport) handleInitialize(w http.ResponseWriter, r *http.Request, msg *wire.Message) {
	t.mu.Lock()
	tooMany := len(t.sessions) >= t.Config.MaxSessions
	t.mu.Unlock()
	if tooMany {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "maximum number of sessions reached")
		return
	}

	id, err := newSessionID()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error", "failed to mint session id")
		return
	}

	sess := session.New(id, func(_ context.Context, _ *wire.Message) error {
		// The streamable HTTP transport has no standing connection to push
		// server-initiated messages over; requests and notifications sent
		// through this session are dropped (the SSE transport delivers them).
		return nil
	})
	ts := &trackedSession{sess: sess, limiter: rate.NewLimiter(t.Config.RateLimit, t.Config.RateBurst)}

	t.mu.Lock()
	t.sessions[id] = ts
	t.mu.Unlock()
	t.D.Hub.Add(sess)

	w.Header().Set("Mcp-Session-Id", id)
	t.dispatch(r.Context(), w, sess, msg)
}

func (t *Transport) dispatch(ctx context.Context, w http.ResponseWriter, sess *session.Session, msg *wire.Message) {
	injectSessionMeta(msg, sess.ID())

	if msg.IsResponse() {
		sess.HandleResponse(msg)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	resp := t.D.Dispatch(ctx, sess, msg)
	if resp == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	data, err := resp.Encode()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error", "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (t *Transport) authorize(r *http.Request) bool {
	if t.Config.BearerToken == "" {
		return true
	}
	const prefix = "Bearer "
	got := r.Header.Get("Authorization")
	return len(got) > len(prefix) && got[len(prefix):] == t.Config.BearerToken && got[:len(prefix)] == prefix
}

func (t *Transport) lookup(id string) (*trackedSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.sessions[id]
	return ts, ok
}

// injectSessionMeta sets params._meta.session_id to sessionID, without
// overwriting a value the caller already supplied.
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

// Package stdio implements the single-peer, line-delimited JSON server
// transport: one process, one connection, no framing header.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/obs"
	"goa.design/mcpcore/mcp/dispatcher"
	"goa.design/mcpcore/mcp/session"
	"goa.design/mcpcore/mcp/wire"
)

// SessionID is the fixed identifier of the single stdio session.
const SessionID = "stdio"

// Transport reads line-delimited JSON-RPC messages from In and writes
// responses, one per line, to Out. There is exactly one session.
type Transport struct {
	In  io.Reader
	Out io.Writer
	D   *dispatcher.Dispatcher
	Obs *obs.Provider

	writeMu sync.Mutex
	sess    *session.Session
}

// New returns a stdio transport bound to d, reading from in and writing to
// out.
func New(in io.Reader, out io.Writer, d *dispatcher.Dispatcher, provider *obs.Provider) *Transport {
	if provider == nil {
		noop := obs.NewNoopProvider()
		provider = &noop
	}
	t := &Transport{In: in, Out: out, D: d, Obs: provider}
	t.sess = session.New(SessionID, t.send)
	d.Hub.Add(t.sess)
	return t
}

// Run reads one message per line until EOF or ctx is cancelled, dispatching
// each to the transport's Dispatcher. It returns nil on clean EOF.
func (t *Transport) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(t.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		t.handleLine(ctx, line)
	}
	return scanner.Err()
}

func (t *Transport) handleLine(ctx context.Context, line []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.Obs.Log.Error(ctx, "recovered panic handling stdio message", "panic", r)
		}
	}()

	msg, err := wire.Decode(line)
	if err != nil {
		errMsg := wire.NewErrorMessage(json.RawMessage("null"), -32700, "parse error: "+err.Error(), jsonvalue.Null())
		_ = t.writeMessage(errMsg)
		return
	}

	if msg.IsResponse() {
		t.sess.HandleResponse(msg)
		return
	}

	resp := t.D.Dispatch(ctx, t.sess, msg)
	if resp != nil {
		_ = t.writeMessage(resp)
	}
}

func (t *Transport) send(_ context.Context, msg *wire.Message) error {
	return t.writeMessage(msg)
}

func (t *Transport) writeMessage(msg *wire.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.Out.Write(data); err != nil {
		return err
	}
	_, err = t.Out.Write([]byte("\n"))
	return err
}

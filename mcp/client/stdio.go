package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/mcp/wire"
)

// StdioOptions configures StdioTransport.
type StdioOptions struct {
	Command         string
	Args            []string
	Env             []string
	Dir             string
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	InitTimeout     time.Duration
	RequestTimeout  time.Duration
}

// StdioTransport spawns a child process and speaks this core's own
// line-delimited JSON wire format over its stdin/stdout — deliberately not
// the Content-Length-prefixed framing some other MCP implementations use for
// subprocess transports, so a client built with this package can talk to a
// server built with mcp/transport/stdio without a framing adapter.
type StdioTransport struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex
	pending *pendingTable

	requestTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
	closeMu   sync.Mutex
}

// NewStdioTransport launches opts.Command and performs the initialize
// handshake over its stdio pipes.
func NewStdioTransport(ctx context.Context, opts StdioOptions) (*StdioTransport, error) {
	if opts.Command == "" {
		return nil, mcperr.New(mcperr.ValidationError, "command is required")
	}
	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	t := &StdioTransport{
		cmd:            cmd,
		stdin:          stdin,
		pending:        newPendingTable(),
		requestTimeout: opts.RequestTimeout,
		closed:         make(chan struct{}),
	}
	go t.readLoop(stdout)

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

// Request sends method/params as one line and waits for the matching
// response line.
func (t *StdioTransport) Request(ctx context.Context, method string, params jsonvalue.Value) (jsonvalue.Value, error) {
	id := t.pending.nextID()
	ch := t.pending.register(id)

	msg, err := wire.NewRequest(wire.StringID(id), method, params)
	if err != nil {
		t.pending.remove(id)
		return jsonvalue.Value{}, err
	}
	if err := t.writeMessage(msg); err != nil {
		t.pending.remove(id)
		return jsonvalue.Value{}, err
	}

	if t.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.requestTimeout)
		defer cancel()
	}

	select {
	case <-t.closed:
		t.pending.remove(id)
		return jsonvalue.Value{}, t.closeError()
	default:
	}
	return t.pending.wait(ctx, id, ch, 0)
}

func (t *StdioTransport) writeMessage(msg *wire.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(data); err != nil {
		return err
	}
	_, err = t.stdin.Write([]byte("\n"))
	return err
}

func (t *StdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := wire.Decode(line)
		if err != nil {
			continue
		}
		if msg.IsResponse() {
			t.pending.resolve(msg)
		}
	}
	err := scanner.Err()
	if err == nil {
		err = errors.New("mcp stdio transport: subprocess closed stdout")
	}
	t.setCloseError(err)
	t.pending.failAll(mcperr.Wrap(mcperr.TransportError, "stdio transport closed", err))
}

// Close terminates the child process and releases its pipes.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.stdin.Close()
		if t.cmd.ProcessState == nil {
			_ = t.cmd.Process.Kill()
		}
		_ = t.cmd.Wait()
		close(t.closed)
	})
	return nil
}

func (t *StdioTransport) setCloseError(err error) {
	t.closeMu.Lock()
	if t.closeErr == nil {
		t.closeErr = err
	}
	t.closeMu.Unlock()
}

func (t *StdioTransport) closeError() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closeErr == nil {
		return errors.New("mcp stdio transport: closed")
	}
	return t.closeErr
}

package dispatcher

import (
	"context"
	"time"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/mcp/registry"
)

// Invoke runs tool.Invoke against input. If enforceTimeout is true and the
// tool declares a non-zero timeout, the call runs on its own goroutine and
// is abandoned (ctx is cancelled and a tool-timeout error returned) once the
// timeout elapses; the abandoned goroutine keeps running to completion in
// the background and may still observe ctx.Done() cooperatively, but its
// result is discarded. Concurrent invocations of the same tool are always
// permitted; no per-tool lock is held. A panic raised by the tool is
// returned as an internal-error.
func Invoke(ctx context.Context, tool *registry.Tool, input jsonvalue.Value, enforceTimeout bool) (jsonvalue.Value, error) {
	if !enforceTimeout || tool.Timeout <= 0 {
		return invokeRecovering(ctx, tool, input)
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result jsonvalue.Value
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := invokeRecovering(callCtx, tool, input)
		done <- outcome{result: result, err: err}
	}()

	timer := time.NewTimer(tool.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.result, out.err
	case <-timer.C:
		cancel()
		return jsonvalue.Null(), mcperr.Newf(mcperr.ToolTimeout, "tool %q exceeded its %s timeout", tool.Name, tool.Timeout)
	}
}

// invokeRecovering calls tool.Invoke and converts a panic raised by the tool
// into an internal-error.
func invokeRecovering(ctx context.Context, tool *registry.Tool, input jsonvalue.Value) (result jsonvalue.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = jsonvalue.Null(), mcperr.Newf(mcperr.InternalError, "tool %q panicked: %v", tool.Name, r)
		}
	}()
	return tool.Invoke(ctx, input)
}

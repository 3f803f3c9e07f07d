package main

import (
	"context"
	"time"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/mcp/dispatcher"
	"goa.design/mcpcore/mcp/registry"
)

// registerDemoTools wires a couple of trivial tools so the transports have
// something to exercise: "echo" round-trips its arguments, "sleep" supports
// background-task submission for poking at the task lifecycle notifications.
func registerDemoTools(d *dispatcher.Dispatcher) {
	schema := jsonvalue.NewObject()
	schema.Set("type", jsonvalue.String("object"))

	_ = d.Tools.Register(&registry.Tool{
		Name:        "echo",
		Description: "returns its input arguments unchanged",
		InputSchema: jsonvalue.FromObject(schema),
		Invoke: func(_ context.Context, input jsonvalue.Value) (jsonvalue.Value, error) {
			return input, nil
		},
	})

	_ = d.Tools.Register(&registry.Tool{
		Name:        "sleep",
		Description: "sleeps for the given number of milliseconds, demonstrating the task lifecycle",
		InputSchema: jsonvalue.FromObject(schema),
		TaskSupport: registry.TaskSupportOptional,
		Invoke: func(ctx context.Context, input jsonvalue.Value) (jsonvalue.Value, error) {
			ms := int64(100)
			if v, ok := input.Get("milliseconds"); ok {
				if n, ok := v.Int(); ok {
					ms = n
				}
			}
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return jsonvalue.Null(), ctx.Err()
			}
			out := jsonvalue.NewObject()
			out.Set("slept_ms", jsonvalue.Int(ms))
			return jsonvalue.FromObject(out), nil
		},
	})
}

package client

import (
	"context"
	"errors"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
)

// CallTool invokes tools/call for name with arguments over t. If the server
// rejects the call with a validation error, the returned error is a
// *RetryableError carrying a repair prompt built from the tool's schema (as
// reported by a prior tools/list), so a caller driving an LLM loop can hand
// the prompt back for a corrected retry.
func CallTool(ctx context.Context, t Transport, schemas map[string]jsonvalue.Value, name string, arguments jsonvalue.Value) (jsonvalue.Value, error) {
	params := jsonvalue.NewObject()
	params.Set("name", jsonvalue.String(name))
	params.Set("arguments", arguments)

	result, err := t.Request(ctx, "tools/call", jsonvalue.FromObject(params))
	if err == nil {
		return result, nil
	}

	var ce *mcperr.CoreError
	if !errors.As(err, &ce) || ce.Kind != mcperr.ClientError || ce.RPCCode != mcperr.CodeInvalidParams {
		return jsonvalue.Value{}, err
	}

	schemaText := ""
	if schemas != nil {
		if s, ok := schemas[name]; ok {
			if data, encErr := s.MarshalJSON(); encErr == nil {
				schemaText = string(data)
			}
		}
	}
	return jsonvalue.Value{}, &RetryableError{
		Prompt: BuildRepairPrompt(name, ce.Message, "{}", schemaText),
		Cause:  err,
	}
}

// ToolSchemas fetches tools/list and returns a name→inputSchema map, for use
// with CallTool's repair-prompt construction.
func ToolSchemas(ctx context.Context, t Transport) (map[string]jsonvalue.Value, error) {
	result, err := t.Request(ctx, "tools/list", jsonvalue.FromObject(jsonvalue.NewObject()))
	if err != nil {
		return nil, err
	}
	toolsVal, ok := result.Get("tools")
	if !ok {
		return map[string]jsonvalue.Value{}, nil
	}
	arr, ok := toolsVal.Array()
	if !ok {
		return map[string]jsonvalue.Value{}, nil
	}
	out := make(map[string]jsonvalue.Value, len(arr))
	for _, tv := range arr {
		nameVal, ok := tv.Get("name")
		if !ok {
			continue
		}
		name, _ := nameVal.String()
		if schema, ok := tv.Get("inputSchema"); ok {
			out[name] = schema
		}
	}
	return out, nil
}

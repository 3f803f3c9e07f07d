package middleware

import (
	"context"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/mcp/registry"
)

// PromptsAsTools synthesizes list_prompts/get_prompt tools that delegate to
// prompts, for clients that only support tool calls.
func PromptsAsTools(prompts *registry.PromptRegistry) []*registry.Tool {
	list := &registry.Tool{
		Name:        "list_prompts",
		Description: "List the prompts available on this server.",
		Invoke: func(_ context.Context, _ jsonvalue.Value) (jsonvalue.Value, error) {
			arr := make([]jsonvalue.Value, 0, prompts.Len())
			for _, p := range prompts.List() {
				o := jsonvalue.NewObject()
				o.Set("name", jsonvalue.String(p.Name))
				if p.Description != "" {
					o.Set("description", jsonvalue.String(p.Description))
				}
				arr = append(arr, jsonvalue.FromObject(o))
			}
			return jsonvalue.Array(arr...), nil
		},
	}

	get := &registry.Tool{
		Name:        "get_prompt",
		Description: "Render a named prompt with the given argument map.",
		Invoke: func(_ context.Context, input jsonvalue.Value) (jsonvalue.Value, error) {
			name, ok := input.Get("name")
			if !ok {
				return jsonvalue.Null(), mcperr.New(mcperr.ValidationError, "name is required")
			}
			nameStr, _ := name.String()
			prompt, ok := prompts.Get(nameStr)
			if !ok {
				return jsonvalue.Null(), mcperr.Newf(mcperr.NotFound, "unknown prompt %q", nameStr)
			}

			args := map[string]string{}
			if rawArgs, ok := input.Get("arguments"); ok {
				if obj, ok := rawArgs.Object(); ok {
					obj.Range(func(key string, v jsonvalue.Value) bool {
						if s, ok := v.String(); ok {
							args[key] = s
						}
						return true
					})
				}
			}

			msgs, err := prompt.Render(args)
			if err != nil {
				return jsonvalue.Null(), mcperr.Wrap(mcperr.InternalError, "prompt render failed", err)
			}
			arr := make([]jsonvalue.Value, len(msgs))
			for i, m := range msgs {
				o := jsonvalue.NewObject()
				o.Set("role", jsonvalue.String(m.Role))
				o.Set("text", jsonvalue.String(m.Text))
				arr[i] = jsonvalue.FromObject(o)
			}
			return jsonvalue.Array(arr...), nil
		},
	}

	return []*registry.Tool{list, get}
}

// ResourcesAsTools synthesizes list_resources/read_resource tools that
// delegate to resources, for clients that only support tool calls.
func ResourcesAsTools(resources *registry.ResourceRegistry) []*registry.Tool {
	list := &registry.Tool{
		Name:        "list_resources",
		Description: "List the resources available on this server.",
		Invoke: func(_ context.Context, _ jsonvalue.Value) (jsonvalue.Value, error) {
			arr := make([]jsonvalue.Value, 0, resources.Len())
			for _, r := range resources.List() {
				o := jsonvalue.NewObject()
				o.Set("uri", jsonvalue.String(r.URI))
				if r.Name != "" {
					o.Set("name", jsonvalue.String(r.Name))
				}
				arr = append(arr, jsonvalue.FromObject(o))
			}
			return jsonvalue.Array(arr...), nil
		},
	}

	read := &registry.Tool{
		Name:        "read_resource",
		Description: "Read a resource by its URI.",
		Invoke: func(_ context.Context, input jsonvalue.Value) (jsonvalue.Value, error) {
			uriVal, ok := input.Get("uri")
			if !ok {
				return jsonvalue.Null(), mcperr.New(mcperr.ValidationError, "uri is required")
			}
			uri, _ := uriVal.String()
			res, ok := resources.Get(uri)
			if !ok {
				return jsonvalue.Null(), mcperr.Newf(mcperr.NotFound, "unknown resource %q", uri)
			}
			content, err := res.Read(nil)
			if err != nil {
				return jsonvalue.Null(), mcperr.Wrap(mcperr.InternalError, "resource read failed", err)
			}
			o := jsonvalue.NewObject()
			if content.IsBinary {
				o.Set("isBinary", jsonvalue.Bool(true))
			} else {
				o.Set("text", jsonvalue.String(content.Text))
			}
			if content.MimeType != "" {
				o.Set("mimeType", jsonvalue.String(content.MimeType))
			}
			return jsonvalue.FromObject(o), nil
		},
	}

	return []*registry.Tool{list, read}
}

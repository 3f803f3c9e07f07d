package middleware

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/mcp/registry"
)

func TestNamespaceToolNameRoundTrip(t *testing.T) {
	params := gopter.DefaultTestParameters()
	props := gopter.NewProperties(params)

	props.Property("reverse(transform(name)) == name", prop.ForAll(
		func(prefix, name string) bool {
			if prefix == "" || name == "" {
				return true
			}
			transformed := NamespaceToolName(prefix, name)
			got, ok := ReverseToolName(prefix, transformed)
			return ok && got == name
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	props.TestingRun(t)
}

func TestNamespaceResourceURIRoundTripPreservesScheme(t *testing.T) {
	uri := NamespaceResourceURI("weather", "weather://new-york/current")
	require.Equal(t, "weather://weather/new-york/current", uri)

	original, ok := ReverseResourceURI("weather", uri)
	require.True(t, ok)
	require.Equal(t, "weather://new-york/current", original)
}

func TestNamespaceWrapsToolListAndGet(t *testing.T) {
	tools := registry.NewToolRegistry()
	require.NoError(t, tools.Register(&registry.Tool{Name: "add", Invoke: noopInvoke}))

	ns := &Namespace[*registry.Tool]{
		Prefix: "math",
		Next:   tools,
		NameOf: func(t *registry.Tool) string { return t.Name },
		Rename: func(t *registry.Tool, newName string) *registry.Tool {
			renamed := *t
			renamed.Name = newName
			return &renamed
		},
	}

	list := ns.List()
	require.Len(t, list, 1)
	require.Equal(t, "math_add", list[0].Name)

	got, ok := ns.Get("math_add")
	require.True(t, ok)
	require.Equal(t, "math_add", got.Name)

	_, ok = ns.Get("add")
	require.False(t, ok)
}

func noopInvoke(context.Context, jsonvalue.Value) (jsonvalue.Value, error) {
	return jsonvalue.Null(), nil
}

func TestToolTransformRejectsHiddenWithoutDefault(t *testing.T) {
	target := &registry.Tool{Name: "add", Invoke: noopInvoke}
	tt := &ToolTransform{
		Target:    target,
		Arguments: map[string]ArgumentTransform{"b": {Hide: true}},
	}
	_, err := tt.Build()
	require.Error(t, err)
}

func TestToolTransformRejectsHiddenAndRequired(t *testing.T) {
	target := &registry.Tool{Name: "add", Invoke: noopInvoke}
	tt := &ToolTransform{
		Target: target,
		Arguments: map[string]ArgumentTransform{
			"b": {Hide: true, Require: true, Default: jsonvalue.Int(1)},
		},
	}
	_, err := tt.Build()
	require.Error(t, err)
}

func TestToolTransformRenameAndHideReconstructArguments(t *testing.T) {
	var seen jsonvalue.Value
	target := &registry.Tool{
		Name: "add",
		Invoke: func(_ context.Context, input jsonvalue.Value) (jsonvalue.Value, error) {
			seen = input
			return jsonvalue.Null(), nil
		},
	}

	tt := &ToolTransform{
		Target: target,
		Arguments: map[string]ArgumentTransform{
			"a": {Rename: "first"},
			"b": {Hide: true, Default: jsonvalue.Int(7)},
		},
	}
	derived, err := tt.Build()
	require.NoError(t, err)

	callArgs := jsonvalue.NewObject()
	callArgs.Set("first", jsonvalue.Int(2))
	_, err = derived.Invoke(context.Background(), jsonvalue.FromObject(callArgs))
	require.NoError(t, err)

	a, ok := seen.Get("a")
	require.True(t, ok)
	av, _ := a.Int()
	require.Equal(t, int64(2), av)

	b, ok := seen.Get("b")
	require.True(t, ok)
	bv, _ := b.Int()
	require.Equal(t, int64(7), bv)
}

func TestPromptsAsToolsListAndGet(t *testing.T) {
	prompts := registry.NewPromptRegistry()
	require.NoError(t, prompts.Register(&registry.Prompt{Name: "greet", Template: "Hello, {name}!"}))

	tools := PromptsAsTools(prompts)
	require.Len(t, tools, 2)

	listResult, err := tools[0].Invoke(context.Background(), jsonvalue.Null())
	require.NoError(t, err)
	arr, ok := listResult.Array()
	require.True(t, ok)
	require.Len(t, arr, 1)

	argsObj := jsonvalue.NewObject()
	argsObj.Set("name", jsonvalue.String("Ada"))
	callArgs := jsonvalue.NewObject()
	callArgs.Set("name", jsonvalue.String("greet"))
	callArgs.Set("arguments", jsonvalue.FromObject(argsObj))

	getResult, err := tools[1].Invoke(context.Background(), jsonvalue.FromObject(callArgs))
	require.NoError(t, err)
	msgs, ok := getResult.Array()
	require.True(t, ok)
	require.Len(t, msgs, 1)
	text, _ := mustField(msgs[0], "text").String()
	require.Equal(t, "Hello, Ada!", text)
}

func mustField(v jsonvalue.Value, key string) jsonvalue.Value {
	f, _ := v.Get(key)
	return f
}

func TestResourcesAsToolsListAndRead(t *testing.T) {
	resources := registry.NewResourceRegistry()
	require.NoError(t, resources.Register(&registry.Resource{
		URI:      "file://readme",
		MimeType: "text/plain",
		Static:   &registry.Content{Text: "hello"},
	}))

	tools := ResourcesAsTools(resources)
	require.Len(t, tools, 2)

	callArgs := jsonvalue.NewObject()
	callArgs.Set("uri", jsonvalue.String("file://readme"))
	result, err := tools[1].Invoke(context.Background(), jsonvalue.FromObject(callArgs))
	require.NoError(t, err)
	text, _ := mustField(result, "text").String()
	require.Equal(t, "hello", text)
}

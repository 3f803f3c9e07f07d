package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"goa.design/mcpcore/internal/jsonvalue"
)

func TestToolRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewToolRegistry()
	add := &Tool{Name: "add", Invoke: func(context.Context, jsonvalue.Value) (jsonvalue.Value, error) {
		return jsonvalue.Null(), nil
	}}
	require.NoError(t, r.Register(add))
	require.Error(t, r.Register(add))
}

func TestToolRegistryValidatesArguments(t *testing.T) {
	schemaObj := jsonvalue.NewObject()
	schemaObj.Set("type", jsonvalue.String("object"))
	reqArr := jsonvalue.Array(jsonvalue.String("a"), jsonvalue.String("b"))
	schemaObj.Set("required", reqArr)
	props := jsonvalue.NewObject()
	aSchema := jsonvalue.NewObject()
	aSchema.Set("type", jsonvalue.String("number"))
	props.Set("a", jsonvalue.FromObject(aSchema))
	bSchema := jsonvalue.NewObject()
	bSchema.Set("type", jsonvalue.String("number"))
	props.Set("b", jsonvalue.FromObject(bSchema))
	schemaObj.Set("properties", jsonvalue.FromObject(props))

	tool := &Tool{
		Name:        "add",
		InputSchema: jsonvalue.FromObject(schemaObj),
		Invoke: func(context.Context, jsonvalue.Value) (jsonvalue.Value, error) {
			return jsonvalue.Null(), nil
		},
	}
	r := NewToolRegistry()
	require.NoError(t, r.Register(tool))

	got, ok := r.Get("add")
	require.True(t, ok)

	goodArgs := jsonvalue.NewObject()
	goodArgs.Set("a", jsonvalue.Int(2))
	goodArgs.Set("b", jsonvalue.Int(3))
	require.NoError(t, got.ValidateArguments(jsonvalue.FromObject(goodArgs)))

	badArgs := jsonvalue.NewObject()
	badArgs.Set("a", jsonvalue.Int(2))
	require.Error(t, got.ValidateArguments(jsonvalue.FromObject(badArgs)))
}

func TestResourceTemplateRegistryFirstMatchWins(t *testing.T) {
	r := NewTemplateRegistry()
	require.NoError(t, r.Register(&ResourceTemplate{URITemplate: "weather://{city}/current"}))
	require.NoError(t, r.Register(&ResourceTemplate{URITemplate: "weather://{place}/current"}))

	tpl, params, ok := r.Match("weather://new-york/current")
	require.True(t, ok)
	require.Equal(t, "weather://{city}/current", tpl.URITemplate)
	require.Equal(t, "new-york", params["city"])

	_, _, ok = r.Match("weather://london/forecast")
	require.False(t, ok)
}

func TestPromptRenderSubstitutesTemplate(t *testing.T) {
	p := &Prompt{Name: "greet", Template: "Hello, {name}!"}
	msgs, err := p.Render(map[string]string{"name": "Ada"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "Hello, Ada!", msgs[0].Text)
}

package registry

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
)

// compiledSchema wraps a compiled jsonschema.Schema so tool registration can
// compile once and validate many times at call time.
type compiledSchema struct {
	schema *jsonschema.Schema
}

// schemaCounter gives every compiled schema a unique synthetic resource URL;
// the jsonschema compiler indexes resources by URL and tool schemas are
// inline documents with no natural one of their own.
var schemaCounter uint64

func compileSchema(schema jsonvalue.Value) (*compiledSchema, error) {
	schemaCounter++
	url := fmt.Sprintf("mem://tool-schema/%d", schemaCounter)

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, schema.ToAny()); err != nil {
		return nil, fmt.Errorf("registry: invalid input schema: %w", err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("registry: invalid input schema: %w", err)
	}
	return &compiledSchema{schema: sch}, nil
}

// Validate checks instance against the compiled schema, wrapping any failure
// as a mcperr.ValidationError.
func (c *compiledSchema) Validate(instance jsonvalue.Value) error {
	if c == nil {
		return nil
	}
	if err := c.schema.Validate(instance.ToAny()); err != nil {
		return mcperr.Wrap(mcperr.ValidationError, "arguments do not match the tool's input schema", err)
	}
	return nil
}

package registry

import (
	"context"
	"time"

	"goa.design/mcpcore/internal/jsonvalue"
)

// TaskSupport declares whether a tool may, must, or never runs as a
// background task (see the task registry).
type TaskSupport string

const (
	TaskSupportNone     TaskSupport = "none"
	TaskSupportOptional TaskSupport = "optional"
	TaskSupportRequired TaskSupport = "required"
)

// Icon is an optional icon descriptor attached to a tool, resource, or
// resource template.
type Icon struct {
	Src      string
	MimeType string
	Sizes    []string
}

// InvokeFunc is a tool's invocation function.
type InvokeFunc func(ctx context.Context, input jsonvalue.Value) (jsonvalue.Value, error)

// Tool is a callable unit exposed over tools/list and tools/call.
type Tool struct {
	Name         string
	Title        string
	Description  string
	InputSchema  jsonvalue.Value
	OutputSchema jsonvalue.Value
	Icons        []Icon
	Invoke       InvokeFunc
	Timeout      time.Duration
	TaskSupport  TaskSupport

	compiledInput *compiledSchema
}

// ToolRegistry is a keyed collection of tools. Two tools never share a name.
type ToolRegistry struct {
	base[*Tool]
}

// NewToolRegistry returns an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{base: newBase[*Tool]()}
}

// Register adds tool to the registry, compiling its input schema if set.
// It returns an error if the name is already registered or the schema fails
// to compile.
func (r *ToolRegistry) Register(tool *Tool) error {
	if !tool.InputSchema.IsNull() {
		cs, err := compileSchema(tool.InputSchema)
		if err != nil {
			return err
		}
		tool.compiledInput = cs
	}
	return r.base.register(tool.Name, tool)
}

// ValidateArguments validates args against the tool's input schema, if any.
// A tool without an input schema accepts any arguments.
func (t *Tool) ValidateArguments(args jsonvalue.Value) error {
	if t.compiledInput == nil {
		return nil
	}
	return t.compiledInput.Validate(args)
}

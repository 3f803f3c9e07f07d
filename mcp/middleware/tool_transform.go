package middleware

import (
	"context"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/mcp/registry"
)

// ArgumentTransform describes how one of a tool's input arguments is
// rewritten before the call reaches the underlying tool.
type ArgumentTransform struct {
	// Rename exposes the argument under a different name; empty leaves it
	// unchanged.
	Rename string
	// Hide substitutes Default for the argument on every call, ignoring
	// any value the caller sends. Hide requires Default to be set and is
	// incompatible with Require.
	Hide    bool
	Default jsonvalue.Value
	// Require is checked by Build only against Hide.
	//
	// Build does not rewrite the input schema: the derived tool keeps
	// Target's InputSchema unchanged, so renamed, hidden and required
	// arguments are not reflected in it.
	Require bool
}

// ToolTransform derives a renamed/rewritten tool from Target. Build
// validates the argument transforms and returns the derived tool, whose
// invocation function reconstructs Target's original argument map
// (substituting hidden defaults) before delegating.
type ToolTransform struct {
	Target      *registry.Tool
	Name        string
	Description string
	Arguments   map[string]ArgumentTransform
}

// Build validates tt and returns the derived tool.
func (tt *ToolTransform) Build() (*registry.Tool, error) {
	for argName, at := range tt.Arguments {
		if at.Hide && at.Default.IsNull() {
			return nil, mcperr.Newf(mcperr.ValidationError, "hidden argument %q requires a default value", argName)
		}
		if at.Hide && at.Require {
			return nil, mcperr.Newf(mcperr.ValidationError, "argument %q cannot be both hidden and required", argName)
		}
	}

	derived := *tt.Target
	if tt.Name != "" {
		derived.Name = tt.Name
	}
	if tt.Description != "" {
		derived.Description = tt.Description
	}

	original := tt.Target.Invoke
	transforms := tt.Arguments
	derived.Invoke = func(ctx context.Context, input jsonvalue.Value) (jsonvalue.Value, error) {
		return original(ctx, reconstructArguments(input, transforms))
	}
	return &derived, nil
}

// reconstructArguments maps the caller-visible argument object back to the
// shape Target.Invoke expects: renamed keys restored to their original
// name, hidden arguments filled from their default.
func reconstructArguments(input jsonvalue.Value, transforms map[string]ArgumentTransform) jsonvalue.Value {
	visible, _ := input.Object()

	exposedToOriginal := make(map[string]string, len(transforms))
	out := jsonvalue.NewObject()
	for originalName, at := range transforms {
		if at.Hide {
			out.Set(originalName, at.Default)
			continue
		}
		exposedName := originalName
		if at.Rename != "" {
			exposedName = at.Rename
		}
		exposedToOriginal[exposedName] = originalName
	}

	if visible != nil {
		visible.Range(func(key string, v jsonvalue.Value) bool {
			if originalName, renamed := exposedToOriginal[key]; renamed {
				out.Set(originalName, v)
				return true
			}
			if _, transformed := transforms[key]; transformed {
				// key matches an original name covered by a transform under
				// a different exposed name; caller used the wrong key, drop it.
				return true
			}
			out.Set(key, v)
			return true
		})
	}

	return jsonvalue.FromObject(out)
}

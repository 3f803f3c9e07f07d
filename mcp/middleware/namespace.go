// Package middleware implements the chain-of-responsibility transforms that
// sit between the dispatcher's registries and the outside world: namespace
// prefixing, per-tool argument rewriting, and exposing prompts/resources as
// synthetic tools for clients that only support tool calls.
package middleware

import "strings"

// NamespaceToolName prepends "<prefix>_" to name.
func NamespaceToolName(prefix, name string) string {
	return prefix + "_" + name
}

// ReverseToolName strips a "<prefix>_" namespace prefix from name, reporting
// false if name does not carry that prefix.
func ReverseToolName(prefix, name string) (string, bool) {
	return strings.CutPrefix(name, prefix+"_")
}

// NamespaceResourceURI inserts "<prefix>/" immediately after the URI scheme,
// e.g. NamespaceResourceURI("weather", "weather://city") is
// "weather://weather/city".
func NamespaceResourceURI(prefix, uri string) string {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return prefix + "/" + uri
	}
	scheme, rest := uri[:idx+3], uri[idx+3:]
	return scheme + prefix + "/" + rest
}

// ReverseResourceURI removes a "<prefix>/" segment inserted by
// NamespaceResourceURI, reporting false if uri does not carry it.
func ReverseResourceURI(prefix, uri string) (string, bool) {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return strings.CutPrefix(uri, prefix+"/")
	}
	scheme, rest := uri[:idx+3], uri[idx+3:]
	trimmed, ok := strings.CutPrefix(rest, prefix+"/")
	if !ok {
		return "", false
	}
	return scheme + trimmed, true
}

// ToolSource is the read surface a transform wraps; registry.ToolRegistry
// satisfies it directly.
type ToolSource[T any] interface {
	List() []T
	Get(name string) (T, bool)
}

// Namespace wraps a tool source, prefixing every name with "<Prefix>_" and
// reversing the prefix on lookup.
type Namespace[T any] struct {
	Prefix string
	Next   ToolSource[T]
	Rename func(v T, newName string) T
	NameOf func(v T) string
}

// List returns every entry from Next with its name namespaced.
func (n *Namespace[T]) List() []T {
	inner := n.Next.List()
	out := make([]T, len(inner))
	for i, v := range inner {
		out[i] = n.Rename(v, NamespaceToolName(n.Prefix, n.NameOf(v)))
	}
	return out
}

// Get reverses the namespace prefix from name and looks up the original.
func (n *Namespace[T]) Get(name string) (T, bool) {
	var zero T
	original, ok := ReverseToolName(n.Prefix, name)
	if !ok {
		return zero, false
	}
	v, ok := n.Next.Get(original)
	if !ok {
		return zero, false
	}
	return n.Rename(v, name), true
}

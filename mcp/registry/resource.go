package registry

import "goa.design/mcpcore/internal/jsonvalue"

// Content is a resource or resource-template read result: either UTF-8 text
// or opaque bytes, tagged with a mime type.
type Content struct {
	Text     string
	Bytes    []byte
	IsBinary bool
	MimeType string
}

// ProviderFunc produces Content for a resource given its extracted
// parameters (empty for a static resource).
type ProviderFunc func(params map[string]string) (Content, error)

// Resource is a single addressable piece of content.
type Resource struct {
	URI         string
	Name        string
	Title       string
	Description string
	MimeType    string
	Meta        *jsonvalue.Object
	Icons       []Icon

	// Static, if non-nil, is served directly; Provider, if set, is called on
	// every read. Exactly one should be set.
	Static   *Content
	Provider ProviderFunc
}

// Read returns the resource's content, invoking Provider if the resource is
// dynamic.
func (r *Resource) Read(params map[string]string) (Content, error) {
	if r.Provider != nil {
		return r.Provider(params)
	}
	if r.Static != nil {
		return *r.Static, nil
	}
	return Content{}, nil
}

// ResourceRegistry is a collection of resources keyed by URI.
type ResourceRegistry struct {
	base[*Resource]
}

// NewResourceRegistry returns an empty resource registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{base: newBase[*Resource]()}
}

// Register adds resource to the registry.
func (r *ResourceRegistry) Register(resource *Resource) error {
	return r.base.register(resource.URI, resource)
}

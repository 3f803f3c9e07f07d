package registry

import (
	"goa.design/mcpcore/mcp/uritemplate"
)

// ResourceTemplate binds a parameterized URI pattern to a content provider.
type ResourceTemplate struct {
	URITemplate string
	Name        string
	Description string
	MimeType    string
	Provider    ProviderFunc

	compiled *uritemplate.Template
}

// TemplateRegistry holds resource templates and matches incoming URIs
// against them, first registered match wins.
type TemplateRegistry struct {
	base[*ResourceTemplate]
}

// NewTemplateRegistry returns an empty template registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{base: newBase[*ResourceTemplate]()}
}

// Register compiles template.URITemplate and adds it to the registry.
func (r *TemplateRegistry) Register(template *ResourceTemplate) error {
	compiled, err := uritemplate.Parse(template.URITemplate)
	if err != nil {
		return err
	}
	template.compiled = compiled
	return r.base.register(template.URITemplate, template)
}

// Match returns the first template, in registration order, whose pattern
// matches uri, along with the extracted path/query parameters.
func (r *TemplateRegistry) Match(uri string) (*ResourceTemplate, map[string]string, bool) {
	for _, t := range r.base.List() {
		if params, ok := t.compiled.Match(uri); ok {
			return t, params, true
		}
	}
	return nil, nil, false
}

package registry

import "strings"

// PromptArgument describes one named argument a prompt accepts.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// PromptMessage is one rendered message in a prompt's output.
type PromptMessage struct {
	Role string
	Text string
}

// GeneratorFunc renders a prompt's messages from its argument map. Prompts
// that use a plain template string instead populate Template and leave
// Generator nil.
type GeneratorFunc func(args map[string]string) ([]PromptMessage, error)

// Prompt is a named, parameterized message template.
type Prompt struct {
	Name        string
	Description string
	Arguments   []PromptArgument
	Template    string
	Generator   GeneratorFunc
}

// Render produces the prompt's messages for the given argument values.
func (p *Prompt) Render(args map[string]string) ([]PromptMessage, error) {
	if p.Generator != nil {
		return p.Generator(args)
	}
	text := p.Template
	for name, val := range args {
		text = strings.ReplaceAll(text, "{"+name+"}", val)
	}
	return []PromptMessage{{Role: "user", Text: text}}, nil
}

// PromptRegistry is a keyed collection of prompts.
type PromptRegistry struct {
	base[*Prompt]
}

// NewPromptRegistry returns an empty prompt registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{base: newBase[*Prompt]()}
}

// Register adds prompt to the registry.
func (r *PromptRegistry) Register(prompt *Prompt) error {
	return r.base.register(prompt.Name, prompt)
}

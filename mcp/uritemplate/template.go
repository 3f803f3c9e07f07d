// Package uritemplate implements the subset of RFC 6570 URI Templates that
// resource templates use: simple path expansions ({name}), reserved/greedy
// expansions ({name*}), and the query-component form ({?a,b,c}).
package uritemplate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// varKind distinguishes the three supported placeholder forms.
type varKind int

const (
	kindSimple varKind = iota // {name}
	kindGreedy                // {name*}
	kindQuery                 // {?a,b,c}
)

type templateVar struct {
	name string
	kind varKind
}

// Template is a parsed RFC 6570 subset pattern.
type Template struct {
	raw     string
	vars    []templateVar // path variables in occurrence order (kindQuery excluded)
	query   []string      // query variable names, if a {?...} component is present
	pattern *regexp.Regexp
}

var tokenRe = regexp.MustCompile(`\{([^{}]*)\}`)

// Parse compiles raw into a Template. It returns an error when the compiled
// pattern is not a valid regular expression; MustParse is the panicking
// form, mirroring Go's regexp.MustCompile convention.
func Parse(raw string) (*Template, error) {
	t := &Template{raw: raw}
	var patternBuf strings.Builder
	patternBuf.WriteByte('^')

	last := 0
	matches := tokenRe.FindAllStringSubmatchIndex(raw, -1)
	for _, m := range matches {
		start, end := m[0], m[1]
		inner := raw[m[2]:m[3]]
		patternBuf.WriteString(regexp.QuoteMeta(raw[last:start]))

		switch {
		case strings.HasPrefix(inner, "?"):
			names := strings.Split(inner[1:], ",")
			for i, n := range names {
				names[i] = strings.TrimSpace(n)
			}
			t.query = names
		case strings.HasSuffix(inner, "*"):
			name := strings.TrimSuffix(inner, "*")
			t.vars = append(t.vars, templateVar{name: name, kind: kindGreedy})
			patternBuf.WriteString(fmt.Sprintf("(?P<%s>.+)", safeGroupName(name)))
		default:
			name := inner
			t.vars = append(t.vars, templateVar{name: name, kind: kindSimple})
			patternBuf.WriteString(fmt.Sprintf("(?P<%s>[^/?#]+)", safeGroupName(name)))
		}
		last = end
	}
	patternBuf.WriteString(regexp.QuoteMeta(raw[last:]))
	patternBuf.WriteByte('$')

	re, err := regexp.Compile(patternBuf.String())
	if err != nil {
		return nil, fmt.Errorf("uritemplate: invalid template %q: %w", raw, err)
	}
	t.pattern = re
	return t, nil
}

// MustParse is Parse but panics on error; intended for package-level
// template literals registered at init time.
func MustParse(raw string) *Template {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the original template text.
func (t *Template) String() string { return t.raw }

// Match tests uri against the template, splitting off any query component
// before matching the path portion. It returns the extracted parameter map
// (path and query values URL-decoded) and true on match, or (nil, false).
func (t *Template) Match(uri string) (map[string]string, bool) {
	path := uri
	var rawQuery string
	if i := strings.IndexAny(uri, "?"); i >= 0 {
		path = uri[:i]
		rawQuery = uri[i+1:]
	}

	m := t.pattern.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	out := make(map[string]string, len(t.vars)+len(t.query))
	for i, name := range t.pattern.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		decoded, err := url.QueryUnescape(m[i])
		if err != nil {
			decoded = m[i]
		}
		out[unsafeGroupName(name)] = decoded
	}

	if len(t.query) > 0 && rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, false
		}
		for _, qn := range t.query {
			if v := values.Get(qn); v != "" {
				out[qn] = v
			}
		}
	}
	return out, true
}

// Expand substitutes params into the template, percent-encoding every
// substituted value except '-', '_', '.', '~', and alphanumerics.
func (t *Template) Expand(params map[string]string) string {
	var buf strings.Builder
	buf.WriteString(tokenRe.ReplaceAllStringFunc(t.raw, func(tok string) string {
		inner := tok[1 : len(tok)-1]
		if strings.HasPrefix(inner, "?") {
			names := strings.Split(inner[1:], ",")
			var parts []string
			for _, n := range names {
				n = strings.TrimSpace(n)
				if v, ok := params[n]; ok {
					parts = append(parts, n+"="+encodeValue(v))
				}
			}
			if len(parts) == 0 {
				return ""
			}
			return "?" + strings.Join(parts, "&")
		}
		name := strings.TrimSuffix(inner, "*")
		return encodeValue(params[name])
	}))
	return buf.String()
}

// encodeValue percent-encodes s, leaving '-', '_', '.', '~', and
// alphanumerics untouched, per RFC 3986 unreserved characters.
func encodeValue(s string) string {
	var b strings.Builder
	for _, r := range []byte(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			b.WriteByte(r)
		default:
			fmt.Fprintf(&b, "%%%02X", r)
		}
	}
	return b.String()
}

// safeGroupName/unsafeGroupName let template variable names that are not
// valid Go regexp group names (e.g. containing '.') round-trip through the
// compiled pattern by hex-prefixing disallowed bytes. Most MCP resource
// template variables are plain identifiers and pass through unchanged.
func safeGroupName(name string) string {
	var b strings.Builder
	b.WriteString("v")
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, "_%04x_", r)
		}
	}
	return b.String()
}

func unsafeGroupName(safe string) string {
	safe = strings.TrimPrefix(safe, "v")
	var b strings.Builder
	for i := 0; i < len(safe); {
		if safe[i] == '_' && i+6 <= len(safe) && safe[i+5] == '_' {
			var code int
			if _, err := fmt.Sscanf(safe[i+1:i+5], "%04x", &code); err == nil {
				b.WriteRune(rune(code))
				i += 6
				continue
			}
		}
		b.WriteByte(safe[i])
		i++
	}
	return b.String()
}

// Registry matches a URI against a set of templates, first match wins, in
// registration order.
type Registry struct {
	templates []*Template
}

// NewRegistry returns an empty template registry.
func NewRegistry() *Registry { return &Registry{} }

// Register appends t to the registry.
func (r *Registry) Register(t *Template) { r.templates = append(r.templates, t) }

// Match returns the first registered template matching uri, along with its
// extracted parameters.
func (r *Registry) Match(uri string) (*Template, map[string]string, bool) {
	for _, t := range r.templates {
		if params, ok := t.Match(uri); ok {
			return t, params, true
		}
	}
	return nil, nil, false
}

// All returns the registered templates in registration order. Callers must
// not mutate the result.
func (r *Registry) All() []*Template { return r.templates }

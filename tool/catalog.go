// Package tool implements the function calling subsystem that lets the model
// invoke interpreter-defined functions with sanitized arguments, consistent
// error handling and per-session execution serialization.
package tool

import (
	"strings"

	"github.com/AnswerDotAI/ai-jup/core"
)

// Descriptor is one callable function as offered to the model: its name,
// the signature string from the notebook, a description, and the declared
// parameter names parsed out of the signature.
type Descriptor struct {
	Name        string
	Signature   string
	Description string
	Params      []string
}

// Catalog is the per-request set of callable functions, built from the
// prompt's context bundle. It is immutable after construction.
type Catalog struct {
	tools map[string]Descriptor
	order []string
}

// NewCatalog builds a catalog from a context bundle's function entries.
func NewCatalog(functions map[string]core.FunctionInfo) *Catalog {
	c := &Catalog{tools: make(map[string]Descriptor, len(functions))}
	for name, info := range functions {
		c.tools[name] = Descriptor{
			Name:        name,
			Signature:   info.Signature,
			Description: info.Description,
			Params:      parseParams(info.Signature),
		}
		c.order = append(c.order, name)
	}
	return c
}

// Resolve looks up a function by name. A miss is an unknown_tool error.
func (c *Catalog) Resolve(name string) (Descriptor, error) {
	d, ok := c.tools[name]
	if !ok {
		return Descriptor{}, core.NewError(core.CodeUnknownTool, "function %q is not defined in this session", name)
	}
	return d, nil
}

// Len returns the number of callable functions.
func (c *Catalog) Len() int { return len(c.tools) }

// All returns the descriptors in registration order.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tools[name])
	}
	return out
}

// parseParams extracts declared parameter names from a signature like
// "load(path: str, *, limit: int = 100) -> DataFrame". Annotations,
// defaults and star markers are dropped. Returns nil when the signature
// is absent or unparseable, which disables unknown-key rejection for
// that function.
func parseParams(signature string) []string {
	open := strings.IndexByte(signature, '(')
	if open < 0 {
		return nil
	}
	end := matchingParen(signature, open)
	if end < 0 {
		return nil
	}
	inner := signature[open+1 : end]
	if strings.TrimSpace(inner) == "" {
		return []string{}
	}

	var params []string
	for _, piece := range splitTopLevel(inner) {
		p := strings.TrimSpace(piece)
		if p == "" || p == "*" || p == "/" {
			continue
		}
		p = strings.TrimLeft(p, "*")
		if i := strings.IndexAny(p, ":="); i >= 0 {
			p = p[:i]
		}
		p = strings.TrimSpace(p)
		if p != "" {
			params = append(params, p)
		}
	}
	if params == nil {
		params = []string{}
	}
	return params
}

func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits on commas not nested inside brackets, so annotations
// like dict[str, int] and defaults like (1, 2) do not break parameters apart.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

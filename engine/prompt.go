package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/AnswerDotAI/ai-jup/core"
	"github.com/AnswerDotAI/ai-jup/model"
	"github.com/AnswerDotAI/ai-jup/tool"
)

var varRefPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// SubstituteVars replaces $name references in the prompt with the
// variable's repr from the context bundle. References to names the bundle
// does not carry are left untouched, including the dollar sign.
func SubstituteVars(prompt string, variables map[string]string) string {
	if len(variables) == 0 {
		return prompt
	}
	return varRefPattern.ReplaceAllStringFunc(prompt, func(ref string) string {
		if repr, ok := variables[ref[1:]]; ok {
			return repr
		}
		return ref
	})
}

const basePrompt = "You are an assistant embedded in a notebook. Answer using the " +
	"interpreter state below. When a defined function can help, call it as a " +
	"tool instead of guessing."

// buildSystemPrompt renders the interpreter-state snapshot into the system
// prompt: preceding code, variable reprs, and the callable functions.
func buildSystemPrompt(extra string, bundle core.ContextBundle) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	if extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	if bundle.PrecedingCode != "" {
		b.WriteString("\n\nRecently executed code:\n")
		b.WriteString(bundle.PrecedingCode)
	}
	if len(bundle.Variables) > 0 {
		b.WriteString("\n\nVariables in scope:\n")
		for _, name := range sortedKeys(bundle.Variables) {
			fmt.Fprintf(&b, "%s = %s\n", name, bundle.Variables[name])
		}
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toolDefinitions converts the catalog into model tool definitions. Declared
// parameters become free-form schema properties since notebook signatures
// carry no reliable type information.
func toolDefinitions(catalog *tool.Catalog) []model.ToolDefinition {
	var defs []model.ToolDefinition
	for _, d := range catalog.All() {
		properties := map[string]any{}
		for _, p := range d.Params {
			properties[p] = map[string]any{}
		}
		description := d.Description
		if description == "" {
			description = d.Signature
		}
		defs = append(defs, model.ToolDefinition{
			Name:        d.Name,
			Description: description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
			},
		})
	}
	return defs
}

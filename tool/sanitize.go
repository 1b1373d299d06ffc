package tool

import (
	"encoding/json"
	"regexp"

	"github.com/AnswerDotAI/ai-jup/core"
)

// identPattern is the only shape a parameter name may take. Anything else
// fails the whole call.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SanitizeArgs validates model-supplied arguments before they reach the
// interpreter. The raw payload must be a JSON object; every key must be a
// valid identifier; when declared is non-nil, keys outside the declared
// parameter set are rejected. Values keep their native JSON types. The
// call is all-or-nothing: a single bad key rejects every argument.
func SanitizeArgs(raw json.RawMessage, declared []string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, core.NewError(core.CodeInvalidArguments, "arguments must be a JSON object: %v", err)
	}
	if args == nil {
		// json.Unmarshal leaves the map nil for a top-level null.
		return nil, core.NewError(core.CodeInvalidArguments, "arguments must be a JSON object, got null")
	}

	var allowed map[string]bool
	if declared != nil {
		allowed = make(map[string]bool, len(declared))
		for _, p := range declared {
			allowed[p] = true
		}
	}

	for key := range args {
		if !identPattern.MatchString(key) {
			return nil, core.NewError(core.CodeInvalidArguments, "argument name %q is not a valid identifier", key)
		}
		if allowed != nil && !allowed[key] {
			return nil, core.NewError(core.CodeInvalidArguments, "argument %q is not a declared parameter", key)
		}
	}
	return args, nil
}

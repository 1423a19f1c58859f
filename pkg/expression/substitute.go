// Package expression resolves {{context.*}} placeholder tokens and evaluates
// the restricted boolean condition language used by condition and split nodes.
package expression

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

const (
	tokenOpen  = "{{"
	tokenClose = "}}"
	// Every token resolves against the run context under this root.
	contextRoot = "context"
)

// Substitute resolves every {{context.a.b.c}} token inside config against the
// dotted path in context and returns the substituted configuration. The config
// is serialized to JSON, tokens are replaced in the serialized form, and the
// result is deserialized back, so any nested field can reference run context
// without per-field wiring.
//
// String values are inserted literally (JSON-escaped), null or missing paths
// become the empty string, and other values are inserted in their JSON form.
// A config without tokens round-trips unchanged.
func Substitute(config map[string]any, context map[string]any) (map[string]any, error) {
	if len(config) == 0 {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config for substitution: %w", err)
	}

	replaced := replaceTokens(string(raw), context, renderEmbedded)

	var out map[string]any

	err = json.Unmarshal([]byte(replaced), &out)
	if err != nil {
		return nil, fmt.Errorf("substituted config is not valid JSON: %w", err)
	}

	return out, nil
}

// SubstituteString resolves tokens in a single string value.
func SubstituteString(input string, context map[string]any) string {
	return replaceTokens(input, context, renderPlain)
}

type renderFunc func(value any, found bool) string

// replaceTokens scans input for {{...}} tokens and renders each resolved
// value with render. Tokens outside the context root and unclosed tokens are
// left untouched.
func replaceTokens(input string, context map[string]any, render renderFunc) string {
	var result strings.Builder

	result.Grow(len(input))

	scope := gabs.Wrap(map[string]any{contextRoot: context})

	for {
		start := strings.Index(input, tokenOpen)
		if start == -1 {
			result.WriteString(input)
			break
		}

		end := strings.Index(input[start:], tokenClose)
		if end == -1 {
			result.WriteString(input)
			break
		}

		end += start

		result.WriteString(input[:start])

		path := strings.TrimSpace(input[start+len(tokenOpen) : end])
		if path != contextRoot && !strings.HasPrefix(path, contextRoot+".") {
			// Not a context token; keep it verbatim.
			result.WriteString(input[start : end+len(tokenClose)])
		} else {
			value := scope.Path(path)
			if value == nil {
				result.WriteString(render(nil, false))
			} else {
				result.WriteString(render(value.Data(), true))
			}
		}

		input = input[end+len(tokenClose):]
	}

	return result.String()
}

// renderEmbedded renders a value for insertion inside a JSON string literal:
// strings are escaped without surrounding quotes, null and missing paths
// become empty, everything else keeps its JSON form.
func renderEmbedded(value any, found bool) string {
	if !found || value == nil {
		return ""
	}

	if s, ok := value.(string); ok {
		return escapeJSONString(s)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}

	return string(raw)
}

// renderPlain renders a value for insertion into plain text.
func renderPlain(value any, found bool) string {
	if !found || value == nil {
		return ""
	}

	if s, ok := value.(string); ok {
		return s
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}

	return string(raw)
}

// renderLiteral renders a value as a source-level literal for the condition
// language: strings keep their quotes so the rendered expression stays
// syntactically valid, missing paths become nil.
func renderLiteral(value any, found bool) string {
	if !found || value == nil {
		return "nil"
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return "nil"
	}

	return string(raw)
}

func escapeJSONString(s string) string {
	raw, err := json.Marshal(s)
	if err != nil {
		return ""
	}

	return string(raw[1 : len(raw)-1])
}

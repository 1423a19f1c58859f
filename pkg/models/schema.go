package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

var validate = validator.New()

// graphSchema is the on-wire contract an automation-authoring tool must
// produce for the {nodes, edges} document.
const graphSchema = `{
	"type": "object",
	"required": ["nodes"],
	"properties": {
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "type"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"type": {"enum": ["action", "condition", "delay", "split"]},
					"name": {"type": "string"},
					"config": {"type": "object"}
				}
			}
		},
		"edges": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["from", "to"],
				"properties": {
					"from": {"type": "string", "minLength": 1},
					"to": {"type": "string", "minLength": 1},
					"condition": {"type": "string"}
				}
			}
		}
	}
}`

var graphSchemaLoader = gojsonschema.NewStringLoader(graphSchema)

// ValidateGraphDocument checks a graph definition against the JSON schema and
// the structural invariants. Used before an automation is persisted so the
// executor only ever sees well-formed graphs.
func ValidateGraphDocument(graph *Graph) error {
	result, err := gojsonschema.Validate(graphSchemaLoader, gojsonschema.NewGoLoader(graph))
	if err != nil {
		return fmt.Errorf("failed to validate graph document: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("graph document does not match schema: %s: %w",
			strings.Join(details, "; "), ErrInvalidGraph)
	}

	return graph.Validate()
}

// ValidateAutomation runs struct-tag validation plus graph validation on an
// automation definition.
func ValidateAutomation(automation *Automation) error {
	err := validate.Struct(automation)
	if err != nil {
		return fmt.Errorf("automation validation failed: %w", err)
	}

	return ValidateGraphDocument(automation.Graph)
}

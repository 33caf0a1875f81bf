package web

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var flowMetadataProperties = map[string]any{
	"id":          map[string]any{"type": "string", "format": "uuid"},
	"name":        map[string]any{"type": "string", "minLength": 1, "maxLength": 100},
	"description": map[string]any{"type": "string"},
	"createdAt":   map[string]any{"type": "string", "format": "date-time"},
	"updatedAt":   map[string]any{"type": "string", "format": "date-time"},
	"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
}

var (
	saveFlowSchema = mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "object"},
			"metadata": map[string]any{
				"type":                 "object",
				"properties":           flowMetadataProperties,
				"additionalProperties": false,
			},
		},
		"required":             []string{"content", "metadata"},
		"additionalProperties": false,
	})

	flowMetadataSchema = mustSchema(map[string]any{
		"type":                 "object",
		"properties":           flowMetadataProperties,
		"additionalProperties": false,
	})

	createFlowInRuleSchema = mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "object"},
			"metadata": map[string]any{
				"type":                 "object",
				"properties":           flowMetadataProperties,
				"additionalProperties": false,
			},
		},
		"additionalProperties": false,
	})

	ruleSchema = mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":          map[string]any{"type": "string", "format": "uuid"},
			"name":        map[string]any{"type": "string", "minLength": 1, "maxLength": 100},
			"description": map[string]any{"type": "string"},
			"flows": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":     map[string]any{"type": "string", "format": "uuid"},
						"name":   map[string]any{"type": "string", "minLength": 1, "maxLength": 100},
						"active": map[string]any{"type": "boolean"},
					},
					"required":             []string{"id", "name", "active"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"name", "description", "flows"},
		"additionalProperties": false,
	})

	simulateSchema = mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"context": map[string]any{"type": "object", "additionalProperties": true},
			"content": map[string]any{"type": "object"},
		},
		"required":             []string{"context", "content"},
		"additionalProperties": false,
	})
)

func mustSchema(schema map[string]any) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		panic(fmt.Errorf("invalid request schema: %w", err))
	}

	return compiled
}

// validateBody checks body against schema and returns every violation joined in one message.
func validateBody(schema *gojsonschema.Schema, body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("request body is required")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return fmt.Errorf("%s", strings.Join(messages, "; "))
}

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidPreset is returned when a preset document fails schema
// validation before it is even parsed into a Workflow.
var ErrInvalidPreset = errors.New("invalid workflow preset")

// presetSchema is the JSON Schema a workflow preset document must
// satisfy. Schema validation catches shape problems; rule-name and
// timing resolution happen afterwards in the engine's save validation.
const presetSchema = `{
	"type": "object",
	"required": ["name", "trigger_id", "timing"],
	"properties": {
		"name":       {"type": "string", "minLength": 3},
		"trigger_id": {"type": "string", "minLength": 1},
		"status":     {"type": "string", "enum": ["active", "disabled"]},
		"batched":    {"type": "boolean"},
		"data_type":  {"type": "string", "enum": ["order", "subscription", "customer"]},
		"timing": {
			"type": "object",
			"required": ["kind"],
			"properties": {
				"kind":         {"type": "string", "enum": ["immediate", "delayed", "scheduled", "fixed", "variable"]},
				"delay_value":  {"type": "integer", "minimum": 0},
				"delay_unit":   {"type": "string", "enum": ["minute", "hour", "day", "week"]},
				"days":         {"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 6}},
				"hour":         {"type": "integer", "minimum": 0, "maximum": 22},
				"minute":       {"type": "integer", "minimum": 0, "maximum": 59},
				"at":           {"type": "string", "format": "date-time"},
				"variable_ref": {"type": "string"}
			}
		},
		"rule_groups": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["rules"],
				"properties": {
					"rules": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["name", "compare_operator"],
							"properties": {
								"name":             {"type": "string", "minLength": 1},
								"compare_operator": {"type": "string"},
								"expected_value":   {"type": "string"}
							}
						}
					}
				}
			}
		},
		"actions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type"],
				"properties": {
					"type":     {"type": "string", "minLength": 1},
					"settings": {"type": "object"}
				}
			}
		}
	}
}`

// ParsePreset validates a preset JSON document against the preset schema
// and unmarshals it into a Workflow. The returned workflow still needs
// engine-level validation (rule name resolution, timing validation).
func ParsePreset(document []byte) (*Workflow, error) {
	schemaLoader := gojsonschema.NewStringLoader(presetSchema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPreset, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidPreset, strings.Join(details, "; "))
	}

	var workflow Workflow
	if err := json.Unmarshal(document, &workflow); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPreset, err)
	}

	if workflow.Status == "" {
		workflow.Status = WorkflowStatusDisabled
	}

	return &workflow, nil
}

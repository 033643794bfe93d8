package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// createAssessmentSchema validates the wire shape of create_assessment params
// before they are decoded. Field-presence rules that depend on runtime values
// (expectation vs feedback exclusivity) stay in handler code; the schema
// rejects structurally bad payloads with a precise pointer into the document.
const createAssessmentSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["assessment"],
	"properties": {
		"assessment": {
			"type": "object",
			"required": ["trace_id", "name", "source"],
			"properties": {
				"trace_id": {"type": "string", "minLength": 1},
				"name": {"type": "string", "minLength": 1},
				"span_id": {"type": ["string", "null"]},
				"source": {
					"type": "object",
					"required": ["source_type", "source_id"],
					"properties": {
						"source_type": {"enum": ["HUMAN", "LLM_JUDGE", "CODE"]},
						"source_id": {"type": "string", "minLength": 1}
					}
				},
				"rationale": {"type": ["string", "null"]},
				"metadata": {
					"type": ["object", "null"],
					"additionalProperties": {"type": "string"}
				}
			}
		}
	}
}`

// paramsValidator checks raw request params against a compiled JSON Schema.
type paramsValidator struct {
	schema *jsonschema.Schema
}

func newCreateAssessmentValidator() (*paramsValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(createAssessmentSchema))
	if err != nil {
		return nil, fmt.Errorf("parse create_assessment schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("create_assessment.json", doc); err != nil {
		return nil, fmt.Errorf("add create_assessment schema: %w", err)
	}
	schema, err := compiler.Compile("create_assessment.json")
	if err != nil {
		return nil, fmt.Errorf("compile create_assessment schema: %w", err)
	}
	return &paramsValidator{schema: schema}, nil
}

// validate returns an error describing the first schema violation in raw.
func (v *paramsValidator) validate(raw json.RawMessage) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("params are not valid JSON: %w", err)
	}
	return v.schema.Validate(inst)
}

// Package schema validates event payloads against per-event JSON Schemas
// before anything touches the ledger. Only a subset of events carries a
// schema; payloads for other events pass through untouched, and unknown
// keys are always allowed.
package schema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/graintrace/core/pkg/ledger"
)

// Per-event schemas. Kept permissive on purpose: field producers in the
// field submit partial data, so only types and ranges are constrained.
var eventSchemas = map[ledger.EventName]string{
	ledger.EventSowing: `{
		"type": "object",
		"properties": {
			"farmerId":            {"type": "string", "minLength": 1},
			"gpsLocation":         {"type": "string"},
			"sowingDate":          {"type": "string"},
			"seedType":            {"type": "string"},
			"seedVariety":         {"type": "string"},
			"seedSource":          {"type": "string"},
			"soilType":            {"type": "string"},
			"firstIrrigationDone": {"type": ["string", "boolean"]},
			"remarks":             {"type": "string"}
		}
	}`,
	ledger.EventHarvest: `{
		"type": "object",
		"properties": {
			"harvestDate":              {"type": "string"},
			"totalYieldKg":             {"type": ["number", "string"]},
			"moisturePercentAtHarvest": {"type": ["number", "string"]},
			"grainGrade":               {"type": "string", "maxLength": 8},
			"remarks":                  {"type": "string"}
		}
	}`,
}

// Validator compiles the event schemas once and checks payloads against
// them. It implements ledger.PayloadValidator.
type Validator struct {
	compiled map[ledger.EventName]*jsonschema.Schema
}

// NewValidator compiles all built-in event schemas.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	compiled := make(map[ledger.EventName]*jsonschema.Schema, len(eventSchemas))
	for event, raw := range eventSchemas {
		url := fmt.Sprintf("https://graintrace.io/schemas/%s.schema.json", strings.ToLower(string(event)))
		if err := compiler.AddResource(url, strings.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("load schema for %s: %w", event, err)
		}
		s, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", event, err)
		}
		compiled[event] = s
	}
	return &Validator{compiled: compiled}, nil
}

// Validate checks data against the schema registered for event. Events
// without a schema always pass. Failures come back as a
// *ledger.ValidationError so the API layer maps them to 400s.
func (v *Validator) Validate(event ledger.EventName, data map[string]any) error {
	s, ok := v.compiled[event]
	if !ok {
		return nil
	}
	if data == nil {
		data = map[string]any{}
	}
	if err := s.Validate(normalize(data)); err != nil {
		return &ledger.ValidationError{Field: "eventData", Reason: err.Error()}
	}
	return nil
}

// normalize converts json.Number values into plain float64/string forms
// the schema engine understands. The ledger keeps the original literals;
// this copy exists only for validation.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case interface{ Float64() (float64, error) }:
		f, err := t.Float64()
		if err != nil {
			return fmt.Sprint(t)
		}
		return f
	default:
		return v
	}
}

package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MountNames are the mounts a reading may describe.
var MountNames = []string{"venus", "jupiter", "saturn", "apollo", "mercury", "luna", "mars"}

// BuildReadingJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// It is sent to the model as an output constraint and used locally to validate.
func BuildReadingJSONSchema() map[string]any {
	text := func() map[string]any { return map[string]any{"type": "string", "minLength": 1} }

	mountProps := map[string]any{}
	for _, m := range MountNames {
		mountProps[m] = text()
	}

	props := map[string]any{
		"hand":       map[string]any{"type": "string", "enum": []string{"left", "right"}},
		"life_line":  text(),
		"heart_line": text(),
		"head_line":  text(),
		"fate_line":  text(),
		"mounts": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           mountProps,
		},
		"personality": text(),
		"summary":     text(),
		"confidence":  map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}
	required := []string{"hand", "life_line", "heart_line", "head_line", "personality", "summary", "confidence"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

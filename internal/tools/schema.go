package tools

import (
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// reflectSchema derives a JSON schema from an argument struct. Field names
// follow the json tags.
func reflectSchema(args any) json.RawMessage {
	r := &invopop.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
	}
	schema := r.Reflect(args)
	schema.Version = ""
	schema.ID = ""
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// compileSchema compiles a tool's argument schema for validation.
func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	compiled, err := jsonschema.CompileString("tool_"+name+".json", string(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return compiled, nil
}

// validateArgs checks raw JSON arguments against schema. A nil schema
// accepts anything.
func validateArgs(schema *jsonschema.Schema, raw json.RawMessage) error {
	if schema == nil {
		return nil
	}
	var payload any
	if len(raw) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

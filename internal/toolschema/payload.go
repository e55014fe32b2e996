package toolschema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// PayloadSchemas optionally associates a tool name with a full JSON Schema
// document for its argument payload. Not every tool declares one — most
// rely on the required/optional list in ToolSchema — but tools with
// structured nested arguments can register a schema here for a stricter
// check layered on top of ValidateToolCall.
type PayloadSchemas map[string]*jsonschema.Schema

// CompilePayloadSchemas compiles a tool name -> raw JSON Schema document map
// into ready-to-validate schemas, grounded on the same
// github.com/santhosh-tekuri/jsonschema/v6 compile-then-validate pattern
// used elsewhere in this stack for registry payload validation.
func CompilePayloadSchemas(raw map[string]json.RawMessage) (PayloadSchemas, error) {
	out := make(PayloadSchemas, len(raw))
	for tool, schemaBytes := range raw {
		if len(schemaBytes) == 0 {
			continue
		}
		var schemaDoc any
		if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
			return nil, fmt.Errorf("tool %q: unmarshal schema: %w", tool, err)
		}
		c := jsonschema.NewCompiler()
		resourceID := tool + ".schema.json"
		if err := c.AddResource(resourceID, schemaDoc); err != nil {
			return nil, fmt.Errorf("tool %q: add schema resource: %w", tool, err)
		}
		compiled, err := c.Compile(resourceID)
		if err != nil {
			return nil, fmt.Errorf("tool %q: compile schema: %w", tool, err)
		}
		out[tool] = compiled
	}
	return out, nil
}

// Validate runs the structural JSON Schema check for tool's payload, if one
// is registered. Returns nil when no schema is registered for tool — this
// is advisory detail layered on top of ValidateToolCall's required-param
// check (spec §4.1), never a replacement for it.
func (p PayloadSchemas) Validate(tool string, args map[string]any) error {
	schema, ok := p[tool]
	if !ok {
		return nil
	}
	return schema.Validate(args)
}

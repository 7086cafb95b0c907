package llm

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a Go type into a JSON schema suitable for strict
// structured output: no additional properties anywhere, every property
// required, applied recursively through nested objects and arrays.
func SchemaFor[T any](name string) (*ResponseSchema, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}

	var v T
	schema := reflector.Reflect(v)

	raw, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshaling schema for %s: %w", name, err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding schema for %s: %w", name, err)
	}

	enforceStrictness(m)
	return &ResponseSchema{Name: name, Schema: m}, nil
}

// enforceStrictness walks the schema applying the strict-mode rules the
// provider enforces on structured output.
func enforceStrictness(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false

		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		for _, prop := range props {
			if pm, ok := prop.(map[string]any); ok {
				enforceStrictness(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		enforceStrictness(items)
	}
}

package toolbox

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a JSON schema parameter map from a Go params struct.
// Field descriptions and required-ness come from jsonschema struct tags, so
// each tool's parameter shape lives next to its executor instead of as a
// hand-built map.
func SchemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	schema := reflector.Reflect(&zero)
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("toolbox: cannot serialize schema for %T: %v", zero, err))
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("toolbox: cannot decode schema for %T: %v", zero, err))
	}
	delete(m, "$schema")
	return m
}

// decodeArgs maps already-parsed tool arguments onto a params struct,
// mirroring SchemaFor so executors work with typed fields.
func decodeArgs[T any](args map[string]any) (T, error) {
	var params T
	data, err := json.Marshal(args)
	if err != nil {
		return params, fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("decode arguments: %w", err)
	}
	return params, nil
}

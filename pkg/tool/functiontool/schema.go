package functiontool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/switchboardai/switchboard/pkg/chat"
)

// generateSchema reflects a chat.Schema from a Go struct type.
//
// Supported tags:
//   - json:"name" - parameter name
//   - jsonschema:"required" - mark as required
//   - jsonschema:"description=..." - parameter description
//   - jsonschema:"enum=val1,enum=val2" - allowed values
//
// DoNotReference inlines the root schema directly, which also keeps
// anonymous struct types working (they have no definition name to
// expand from).
func generateSchema[T any]() (chat.Schema, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	reflected := reflector.Reflect(new(T))

	// Round-trip through JSON to flatten the reflector's schema into
	// the contract's declaration shape. Unknown keywords drop out.
	data, err := json.Marshal(reflected)
	if err != nil {
		return chat.Schema{}, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var schema chat.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return chat.Schema{}, fmt.Errorf("failed to convert schema: %w", err)
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}

// Package functiontool builds chat tools from typed Go functions.
//
// The parameter schema is generated by reflection from the argument
// struct's json and jsonschema tags, and incoming arguments are decoded
// back into the struct before the function runs.
//
//	type WeatherArgs struct {
//	    City  string `json:"city" jsonschema:"required,description=City name"`
//	    Units string `json:"units,omitempty" jsonschema:"description=Temperature units,enum=celsius,enum=fahrenheit"`
//	}
//
//	weather, err := functiontool.New("get_weather", "Get current weather for a city",
//	    func(ctx context.Context, args WeatherArgs) (string, error) {
//	        return lookup(args.City, args.Units)
//	    })
package functiontool

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/switchboardai/switchboard/pkg/chat"
)

// New creates a chat.Tool whose handler decodes arguments into Args and
// calls fn. The schema is reflected from Args.
func New[Args any](name, description string, fn func(ctx context.Context, args Args) (string, error)) (chat.Tool, error) {
	if name == "" {
		return chat.Tool{}, fmt.Errorf("tool name is required")
	}
	if description == "" {
		return chat.Tool{}, fmt.Errorf("tool %s: description is required", name)
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return chat.Tool{}, fmt.Errorf("tool %s: %w", name, err)
	}

	return chat.Tool{
		Name:        name,
		Description: description,
		Schema:      schema,
		Handler: func(ctx context.Context, raw map[string]any) (string, error) {
			var args Args
			if err := decodeArgs(raw, &args); err != nil {
				return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
			}
			return fn(ctx, args)
		},
	}, nil
}

// NewWithValidation is New with a validation hook that runs after
// decoding and before fn.
func NewWithValidation[Args any](
	name, description string,
	fn func(ctx context.Context, args Args) (string, error),
	validate func(Args) error,
) (chat.Tool, error) {
	t, err := New(name, description, fn)
	if err != nil {
		return chat.Tool{}, err
	}

	inner := t.Handler
	t.Handler = func(ctx context.Context, raw map[string]any) (string, error) {
		var args Args
		if err := decodeArgs(raw, &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
		if err := validate(args); err != nil {
			return "", fmt.Errorf("validation failed for %s: %w", name, err)
		}
		return inner(ctx, raw)
	}
	return t, nil
}

// decodeArgs converts loosely typed JSON arguments into the target
// struct, honoring json tags and coercing numeric types.
func decodeArgs(m map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

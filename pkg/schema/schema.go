// Package schema validates invocation parameters against a JSON Schema before
// a unit of work runs.
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/wehubfusion/outcome/pkg/boundary"
	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
)

// CodeInvalidParams is the AppError code for parameters rejected by a schema
const CodeInvalidParams = "INVALID_PARAMS"

// Schema is a compiled parameter schema. It is safe for concurrent use.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// Compile parses a JSON Schema document. draft selects the dialect when the
// document has no $schema ("4", "6", "7", "2019-09", "2020-12"; default 2020-12).
func Compile(name string, document []byte, draft string) (*Schema, error) {
	if name == "" {
		name = "params.json"
	}
	if !json.Valid(document) {
		return nil, sdkerrors.NewValidationError("schema is not valid JSON", "SCHEMA_INVALID", nil)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = draftVersion(draft)
	if err := compiler.AddResource(name, bytes.NewReader(document)); err != nil {
		return nil, sdkerrors.NewValidationError("failed to add schema", "SCHEMA_INVALID", err)
	}

	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, sdkerrors.NewValidationError("failed to compile schema", "SCHEMA_INVALID", err)
	}

	return &Schema{name: name, compiled: compiled}, nil
}

// Validate checks params. Nil params validate as an empty object.
func (s *Schema) Validate(params boundary.Params) error {
	if params == nil {
		params = boundary.Params{}
	}

	// Round trip through JSON so Go values match the schema's type model
	raw, err := json.Marshal(params)
	if err != nil {
		return sdkerrors.NewValidationError("params are not JSON-encodable", CodeInvalidParams, err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return sdkerrors.NewValidationError("params are not JSON-encodable", CodeInvalidParams, err)
	}

	if err := s.compiled.Validate(instance); err != nil {
		violations := Violations(err)
		return sdkerrors.NewValidationError(
			fmt.Sprintf("params do not match %s: %s", s.name, strings.Join(violations, "; ")),
			CodeInvalidParams, err)
	}
	return nil
}

// Guard returns work that validates params against s before calling work.
// Rejected params fail with a ValidationError and work is not called.
func Guard[T any](s *Schema, work boundary.Work[T]) boundary.Work[T] {
	return func(ctx context.Context, params boundary.Params) (T, error) {
		if err := s.Validate(params); err != nil {
			var zero T
			return zero, err
		}
		return work(ctx, params)
	}
}

// Violations flattens a validation error into one line per failed keyword
func Violations(err error) []string {
	if err == nil {
		return nil
	}
	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	return flatten(validationErr)
}

func flatten(err *jsonschema.ValidationError) []string {
	// Only leaves carry the concrete reason
	if len(err.Causes) == 0 {
		location := err.InstanceLocation
		if location == "" {
			location = "/"
		}
		return []string{fmt.Sprintf("at '%s': %s", location, err.Message)}
	}

	var out []string
	for _, cause := range err.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}

func draftVersion(draft string) *jsonschema.Draft {
	switch draft {
	case "draft-04", "4":
		return jsonschema.Draft4
	case "draft-06", "6":
		return jsonschema.Draft6
	case "draft-07", "7":
		return jsonschema.Draft7
	case "2019-09":
		return jsonschema.Draft2019
	default:
		return jsonschema.Draft2020
	}
}

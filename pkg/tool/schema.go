package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/go-conductor/conductor/pkg/errs"
)

// compiledSchema wraps a validated JSON Schema document so a Tool can
// validate arguments before Invoke runs them, catching a malformed
// model-emitted tool call as a Validation StructuredError instead of a
// confusing tool-internal failure.
type compiledSchema struct {
	schema *jsonschema.Schema
}

// compileSchema parses and compiles a raw JSON Schema document. Called once
// at tool construction time; the result is reused across every Invoke.
func compileSchema(name string, raw []byte) (*compiledSchema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tool %s: invalid schema json: %w", name, err)
	}

	resourceName := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("tool %s: add schema resource: %w", name, err)
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("tool %s: compile schema: %w", name, err)
	}
	return &compiledSchema{schema: schema}, nil
}

// validate checks arguments against the compiled schema, returning a
// Validation StructuredError (not a bare error) when they don't match, since
// this is meant to be surfaced directly as a failed Result.
func (c *compiledSchema) validate(toolName string, arguments map[string]any) *errs.StructuredError {
	if c == nil || c.schema == nil {
		return nil
	}

	// jsonschema/v6 validates against decoded JSON values (map[string]any,
	// []any, json.Number, ...); round-tripping through json with UseNumber
	// makes numeric args land as json.Number whether the caller passed an
	// int or a float64.
	raw, err := json.Marshal(arguments)
	if err != nil {
		return errs.Internal("TOOL_ARG_MARSHAL_FAILED", err.Error())
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return errs.Internal("TOOL_ARG_DECODE_FAILED", err.Error())
	}

	if err := c.schema.Validate(doc); err != nil {
		return errs.Validation("TOOL_ARGS_INVALID",
			fmt.Sprintf("arguments for tool %q failed schema validation: %v", toolName, err))
	}
	return nil
}

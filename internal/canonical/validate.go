package canonical

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// requestSchemaSrc and responseSchemaSrc describe the shapes in this
// package as plain JSON Schema. The pipeline calls ValidateRequest on the
// canonical request right after the client→canonical translation, and
// ValidateResponse after the provider→canonical translation (spec §4.A:
// "validate inbound client requests... validate canonical responses
// before rendering"). Unknown fields are allowed everywhere, and
// providerParams' keys are not validated at all, since providerParams is
// the one place arbitrary opt-in data is expected to live.
const requestSchemaSrc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["model", "messages"],
  "properties": {
    "model": {"type": "string", "minLength": 1},
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["role"],
        "properties": {
          "role": {"enum": ["system", "user", "assistant", "tool"]}
        }
      }
    }
  }
}`

const responseSchemaSrc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "model", "choices"],
  "properties": {
    "id": {"type": "string"},
    "model": {"type": "string"},
    "choices": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["index", "message"]
      }
    }
  }
}`

var (
	requestSchema  *jsonschema.Schema
	responseSchema *jsonschema.Schema
)

func init() {
	requestSchema = mustCompile("canonical_request.json", requestSchemaSrc)
	responseSchema = mustCompile("canonical_response.json", responseSchemaSrc)
}

func mustCompile(name, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("canonical: invalid embedded schema %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("canonical: adding schema resource %s: %v", name, err))
	}
	s, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("canonical: compiling schema %s: %v", name, err))
	}
	return s
}

// ValidateRequest checks req against the canonical request schema. Adapters
// call this immediately after clientToCanonical; a failure here means the
// translation produced a structurally invalid canonical value, which is an
// AdapterFailure (§7), not a client InvalidInput — the client's own input
// was already validated by the adapter's own shape checks before this runs.
func ValidateRequest(req *CanonicalRequest) error {
	return validateAgainst(requestSchema, req)
}

// ValidateResponse checks resp against the canonical response schema
// (spec §4.A, §8 invariant 2: "canonicalResponse validates against the
// canonical response schema").
func ValidateResponse(resp *CanonicalResponse) error {
	return validateAgainst(responseSchema, resp)
}

func validateAgainst(schema *jsonschema.Schema, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("canonical: marshaling for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("canonical: unmarshaling for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("canonical: schema validation failed: %w", err)
	}
	return nil
}

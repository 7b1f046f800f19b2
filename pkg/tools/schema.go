package tools

import (
	"bytes"
	"encoding/json"

	invopop "github.com/invopop/jsonschema"
	sjs "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/forgehq/forge/pkg/orcherr"
)

// schemaValidator validates a tool's raw argument map against the JSON
// schema reflected off that tool's Go argument struct. invopop/jsonschema
// generates the schema document from field tags; santhosh-tekuri compiles
// and evaluates it against the untyped map a model's tool call actually
// produces — two libraries, one each side of generate/validate.
type schemaValidator struct {
	schema *sjs.Schema
}

// newSchemaValidator reflects argsPrototype (a zero-value struct, e.g.
// ReadFileArgs{}) into a compiled validator.
func newSchemaValidator(argsPrototype any) (*schemaValidator, error) {
	reflector := &invopop.Reflector{DoNotReference: true}
	doc := reflector.Reflect(argsPrototype)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	compiler := sjs.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, err
	}
	return &schemaValidator{schema: compiled}, nil
}

// validate rejects missing required fields or type mismatches with a
// structured ToolValidationError (§4.7 step 1).
func (v *schemaValidator) validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	if err := v.schema.Validate(args); err != nil {
		return orcherr.Wrap(orcherr.CodeToolValidationError, "tool arguments failed schema validation", err)
	}
	return nil
}

package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Base provides the schema-compilation and static-flag plumbing shared by
// every concrete tool descriptor. Concrete tools embed Base and implement
// IsConcurrencySafe and Invoke themselves, overriding MatchSubject when they
// have a natural subject; they may layer additional semantic/precondition
// checks on top of Base.Validate.
type Base struct {
	name        string
	description string
	schemaRaw   json.RawMessage
	schema      *jsonschema.Schema
	readOnly    bool
	needsPerm   bool
}

// NewBase compiles schema once at registration time so every later Validate
// call is a pure in-memory check.
func NewBase(name, description string, schema json.RawMessage, readOnly, needsPerm bool) (Base, error) {
	compiler := jsonschema.NewCompiler()
	url := "mem://kode/" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(schema)); err != nil {
		return Base{}, fmt.Errorf("register schema for %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return Base{}, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return Base{
		name:        name,
		description: description,
		schemaRaw:   schema,
		schema:      compiled,
		readOnly:    readOnly,
		needsPerm:   needsPerm,
	}, nil
}

func (b Base) Name() string               { return b.name }
func (b Base) Description() string        { return b.description }
func (b Base) Schema() json.RawMessage    { return b.schemaRaw }
func (b Base) IsReadOnly() bool           { return b.readOnly }
func (b Base) NeedsPermissions(json.RawMessage) bool {
	return b.needsPerm
}

// Validate checks input against the compiled JSON Schema. Concrete tools
// that need semantic or precondition checks should call this first and only
// proceed to their own checks if it returns nil.
func (b Base) Validate(input json.RawMessage) *ValidationError {
	var v interface{}
	if err := json.Unmarshal(input, &v); err != nil {
		return &ValidationError{Kind: KindSchema, Message: fmt.Sprintf("invalid JSON in tool arguments: %s", err)}
	}
	if err := b.schema.Validate(v); err != nil {
		return &ValidationError{Kind: KindSchema, Message: fmt.Sprintf("input does not satisfy schema: %s", err)}
	}
	return nil
}

// MatchSubject is the zero-value default: no natural permission-matching
// subject. Tools with one (file paths, shell commands) override it.
func (b Base) MatchSubject(json.RawMessage) string { return "" }

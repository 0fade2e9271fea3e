// Package validation checks request bodies against the embedded JSON schemas
// and decodes them into typed requests.
package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"todo-backend/internal/apperr"
	"todo-backend/internal/model"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	SchemaCreateTodo = "create_todo.json"
	SchemaUpdateTodo = "update_todo.json"
)

// Validator holds the compiled request schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	v := &Validator{schemas: make(map[string]*jsonschema.Schema)}
	for _, name := range []string{SchemaCreateTodo, SchemaUpdateTodo} {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// Validate checks body against the named schema.
func (v *Validator) Validate(schemaName string, body []byte) error {
	schema, ok := v.schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema %q not found", schemaName)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "validation.Validate", "request body is not valid JSON", err)
	}
	if err := schema.Validate(doc); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "validation.Validate", describe(err), err)
	}
	return nil
}

func (v *Validator) DecodeCreate(body []byte) (model.CreateTodoRequest, error) {
	var req model.CreateTodoRequest
	err := v.decode(SchemaCreateTodo, body, &req)
	return req, err
}

func (v *Validator) DecodeUpdate(body []byte) (model.UpdateTodoRequest, error) {
	var req model.UpdateTodoRequest
	err := v.decode(SchemaUpdateTodo, body, &req)
	return req, err
}

func (v *Validator) decode(schemaName string, body []byte, out any) error {
	if err := v.Validate(schemaName, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "validation.decode", "request body does not match the expected shape", err)
	}
	return nil
}

// describe turns a schema failure into a short caller-facing message built
// from the deepest cause.
func describe(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return "invalid request body"
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return "invalid request body: " + ve.Message
	}
	return fmt.Sprintf("invalid request body at %s: %s", ve.InstanceLocation, ve.Message)
}

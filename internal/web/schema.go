// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package web

import (
	"bytes"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

// Schemas holds the generated JSON Schemas of the API types and the
// compiled validators for request bodies.
type Schemas struct {
	document map[string]*jsonschema.Schema
	register *validator.Schema
	login    *validator.Schema
}

// NewSchemas reflects the API types and compiles the request validators.
func NewSchemas() (*Schemas, error) {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		ExpandedStruct: true,
		DoNotReference: true,
	}

	doc := map[string]*jsonschema.Schema{
		"register":     r.Reflect(&RegisterRequest{}),
		"login":        r.Reflect(&LoginRequest{}),
		"authResponse": r.Reflect(&AuthResponseView{}),
		"user":         r.Reflect(&UserView{}),
	}

	register, err := compile("register.json", doc["register"])
	if err != nil {
		return nil, err
	}
	login, err := compile("login.json", doc["login"])
	if err != nil {
		return nil, err
	}

	return &Schemas{document: doc, register: register, login: login}, nil
}

func compile(name string, s *jsonschema.Schema) (*validator.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	doc, err := validator.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}

	c := validator.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	compiled, err := c.Compile(name)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	return compiled, nil
}

// Document returns the schemas keyed by type role, for GET /schema.
func (s *Schemas) Document() map[string]*jsonschema.Schema {
	return s.document
}

// GenerateDocument returns the indented schema document written to
// schemas/api.schema.json.
func GenerateDocument() ([]byte, error) {
	s, err := NewSchemas()
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(s.Document(), "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_MARSHAL_FAILED").Wrap(err)
	}
	return append(out, '\n'), nil
}

// decodeRegister validates body and decodes it.
func (s *Schemas) decodeRegister(body []byte) (RegisterRequest, error) {
	var req RegisterRequest
	err := validateAndDecode(s.register, body, &req)
	return req, err
}

// decodeLogin validates body and decodes it.
func (s *Schemas) decodeLogin(body []byte) (LoginRequest, error) {
	var req LoginRequest
	err := validateAndDecode(s.login, body, &req)
	return req, err
}

func validateAndDecode(sch *validator.Schema, body []byte, dst any) error {
	inst, err := validator.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return oops.Code(CodeInvalidRequest).Wrapf(err, "body is not valid JSON")
	}
	if err := sch.Validate(inst); err != nil {
		return oops.Code(CodeInvalidRequest).Wrap(err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code(CodeInvalidRequest).Wrap(err)
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/cppgen/services/cppgen/diag"
)

// Format is the encoding of a declaration record file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the record format from a file extension.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	default:
		return "", false
	}
}

// UnitRecord is the on-disk form of a Unit as written by a front-end.
//
// Description:
//
//	Types are C++ spellings ("const MadeUp&") parsed with ParseType.
//	Kind may be omitted, in which case it is inferred from the methods.
type UnitRecord struct {
	Name         string           `json:"name" yaml:"name" validate:"required"`
	Declarations []DeclRecord     `json:"declarations" yaml:"declarations" validate:"dive"`
	Functions    []FunctionRecord `json:"functions" yaml:"functions" validate:"dive"`
}

// DeclRecord is one class or interface.
type DeclRecord struct {
	Name    string         `json:"name" yaml:"name" validate:"required"`
	Kind    string         `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=class interface"`
	Bases   []string       `json:"bases,omitempty" yaml:"bases,omitempty" validate:"dive,required"`
	Methods []MethodRecord `json:"methods,omitempty" yaml:"methods,omitempty" validate:"dive"`
	Fields  []FieldRecord  `json:"fields,omitempty" yaml:"fields,omitempty" validate:"dive"`

	// Forward marks a declaration with no body ("class Foo;").
	Forward bool `json:"forward,omitempty" yaml:"forward,omitempty"`
}

// MethodRecord is one member function.
type MethodRecord struct {
	Name       string        `json:"name" yaml:"name" validate:"required"`
	Params     []ParamRecord `json:"params,omitempty" yaml:"params,omitempty" validate:"dive"`
	Return     string        `json:"return,omitempty" yaml:"return,omitempty"`
	Pure       bool          `json:"pure,omitempty" yaml:"pure,omitempty"`
	Virtual    bool          `json:"virtual,omitempty" yaml:"virtual,omitempty"`
	Const      bool          `json:"const,omitempty" yaml:"const,omitempty"`
	Visibility string        `json:"visibility,omitempty" yaml:"visibility,omitempty" validate:"omitempty,oneof=public protected private"`
	Kind       string        `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=normal constructor copy_constructor destructor assign"`
	Body       []CallRecord  `json:"body,omitempty" yaml:"body,omitempty" validate:"dive"`

	// Defined marks an inline definition with an empty body.
	Defined bool `json:"defined,omitempty" yaml:"defined,omitempty"`
}

// ParamRecord is one parameter.
type ParamRecord struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Type string `json:"type" yaml:"type" validate:"required"`
}

// FieldRecord is one data member.
type FieldRecord struct {
	Name       string `json:"name" yaml:"name" validate:"required"`
	Type       string `json:"type" yaml:"type" validate:"required"`
	Visibility string `json:"visibility,omitempty" yaml:"visibility,omitempty" validate:"omitempty,oneof=public protected private"`
}

// FunctionRecord is a free function or out-of-line method body.
type FunctionRecord struct {
	Name   string        `json:"name" yaml:"name" validate:"required"`
	Owner  string        `json:"owner,omitempty" yaml:"owner,omitempty"`
	Params []ParamRecord `json:"params,omitempty" yaml:"params,omitempty" validate:"dive"`
	Return string        `json:"return,omitempty" yaml:"return,omitempty"`
	Calls  []CallRecord  `json:"calls,omitempty" yaml:"calls,omitempty" validate:"dive"`
}

// CallRecord is one call expression.
type CallRecord struct {
	Callee string       `json:"callee" yaml:"callee" validate:"required"`
	In     []string     `json:"in,omitempty" yaml:"in,omitempty" validate:"dive,oneof=if else for while do switch try catch"`
	Args   []CallRecord `json:"args,omitempty" yaml:"args,omitempty" validate:"dive"`
}

var recordValidator = validator.New(validator.WithRequiredStructEnabled())

// DecodeUnit parses and validates a unit record.
//
// Description:
//
//	Decodes data in the given format, validates the record shape, and
//	converts it to a normalized Unit. Shape violations are reported as
//	MalformedDeclaration because nothing downstream can use the record.
//
// Inputs:
//
//	data - Encoded record.
//	format - FormatJSON or FormatYAML.
//
// Outputs:
//
//	*Unit - The converted unit. Declarations are normalized.
//	error - Decoding error, or *diag.Error of KindMalformedDeclaration.
func DecodeUnit(data []byte, format Format) (*Unit, error) {
	var rec UnitRecord
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding json unit: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding yaml unit: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported record format %q", format)
	}

	if err := recordValidator.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, diag.Errorf(diag.KindMalformedDeclaration, rec.Name,
				"record field %s fails %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("validating unit %q: %w", rec.Name, err)
	}

	return rec.ToUnit()
}

// LoadUnitFile reads a JSON or YAML record file.
func LoadUnitFile(path string) (*Unit, error) {
	format, ok := FormatForPath(path)
	if !ok {
		return nil, fmt.Errorf("cannot infer record format from %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	u, err := DecodeUnit(data, format)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return u, nil
}

// ToUnit converts the record to the in-memory model.
func (r UnitRecord) ToUnit() (*Unit, error) {
	u := &Unit{
		Name:         r.Name,
		Declarations: make([]*Declaration, 0, len(r.Declarations)),
		Functions:    make([]*Function, 0, len(r.Functions)),
	}
	for _, dr := range r.Declarations {
		d, err := dr.toDeclaration(r.Name)
		if err != nil {
			return nil, err
		}
		u.Declarations = append(u.Declarations, d)
	}
	for _, fr := range r.Functions {
		u.Functions = append(u.Functions, &Function{
			Name:   fr.Name,
			Owner:  fr.Owner,
			Params: toParams(fr.Params),
			Return: ParseType(fr.Return),
			Calls:  toCalls(fr.Calls),
		})
	}
	return u, nil
}

func (r DeclRecord) toDeclaration(unit string) (*Declaration, error) {
	d := &Declaration{
		Name:         r.Name,
		Bases:        append([]string(nil), r.Bases...),
		FullyDefined: !r.Forward,
		Unit:         unit,
	}
	for _, mr := range r.Methods {
		kind, ok := ParseMethodKind(mr.Kind)
		if !ok {
			return nil, diag.Errorf(diag.KindMalformedDeclaration, r.Name, "unknown method kind %q", mr.Kind)
		}
		d.Methods = append(d.Methods, &Method{
			Name:        mr.Name,
			Params:      toParams(mr.Params),
			Return:      ParseType(mr.Return),
			PureVirtual: mr.Pure,
			Virtual:     mr.Virtual || mr.Pure,
			Const:       mr.Const,
			Visibility:  ParseVisibility(mr.Visibility),
			Kind:        kind,
			HasBody:     mr.Defined || len(mr.Body) > 0,
			Body:        toCalls(mr.Body),
		})
	}
	for _, fr := range r.Fields {
		d.Fields = append(d.Fields, &Field{
			Name:       fr.Name,
			Type:       ParseType(fr.Type),
			Owner:      r.Name,
			Visibility: ParseVisibility(fr.Visibility),
		})
	}
	d.Normalize()

	switch r.Kind {
	case "interface":
		d.Kind = KindInterface
	case "class":
		d.Kind = KindClass
	default:
		d.Kind = InferKind(d)
	}
	return d, nil
}

// InferKind tags a declaration as an interface when it has at least one
// instrumentable method and all of them are pure virtual.
func InferKind(d *Declaration) DeclKind {
	methods := d.InstrumentableMethods()
	if len(methods) == 0 || len(d.Fields) > 0 {
		return KindClass
	}
	for _, m := range methods {
		if !m.PureVirtual {
			return KindClass
		}
	}
	return KindInterface
}

func toParams(recs []ParamRecord) []Param {
	if len(recs) == 0 {
		return nil
	}
	out := make([]Param, 0, len(recs))
	for _, p := range recs {
		out = append(out, Param{Name: p.Name, Type: ParseType(p.Type)})
	}
	return out
}

func toCalls(recs []CallRecord) []CallExpr {
	if len(recs) == 0 {
		return nil
	}
	out := make([]CallExpr, 0, len(recs))
	for _, c := range recs {
		call := CallExpr{Callee: c.Callee, Args: toCalls(c.Args)}
		for _, in := range c.In {
			if k, ok := ParseConstruct(in); ok {
				call.Enclosing = append(call.Enclosing, k)
			}
		}
		out = append(out, call)
	}
	return out
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decl is the in-memory declaration model supplied by a C++ front-end.
//
// Records are immutable once ingested. Cross-unit name resolution happens in
// SymbolTable, which is the merge barrier every later stage reads from.
package decl

import (
	"strings"
)

// DeclKind tags a Declaration as a class or an interface.
type DeclKind int

const (
	// KindClass is an ordinary class or struct.
	KindClass DeclKind = iota

	// KindInterface is a declaration whose every instrumentable method is pure virtual.
	KindInterface
)

// String returns "class" or "interface".
func (k DeclKind) String() string {
	if k == KindInterface {
		return "interface"
	}
	return "class"
}

// Visibility is a C++ access specifier.
type Visibility int

const (
	Public Visibility = iota
	Protected
	Private
)

// String returns the access specifier keyword.
func (v Visibility) String() string {
	switch v {
	case Protected:
		return "protected"
	case Private:
		return "private"
	default:
		return "public"
	}
}

// ParseVisibility maps a keyword to a Visibility. Unknown keywords map to Public.
func ParseVisibility(s string) Visibility {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "protected":
		return Protected
	case "private":
		return Private
	default:
		return Public
	}
}

// MethodKind separates special members from ordinary methods.
type MethodKind int

const (
	MethodNormal MethodKind = iota
	MethodConstructor
	MethodCopyConstructor
	MethodDestructor
	MethodAssign
)

// String returns the snake_case name of the kind.
func (k MethodKind) String() string {
	switch k {
	case MethodConstructor:
		return "constructor"
	case MethodCopyConstructor:
		return "copy_constructor"
	case MethodDestructor:
		return "destructor"
	case MethodAssign:
		return "assign"
	default:
		return "normal"
	}
}

// ParseMethodKind maps a snake_case name back to a MethodKind.
func ParseMethodKind(s string) (MethodKind, bool) {
	switch s {
	case "", "normal":
		return MethodNormal, true
	case "constructor":
		return MethodConstructor, true
	case "copy_constructor":
		return MethodCopyConstructor, true
	case "destructor":
		return MethodDestructor, true
	case "assign":
		return MethodAssign, true
	default:
		return MethodNormal, false
	}
}

// Construct is the control statement enclosing a call expression.
type Construct int

const (
	ConstructNone Construct = iota
	ConstructIf
	ConstructElse
	ConstructFor
	ConstructWhile
	ConstructDo
	ConstructSwitch
	ConstructTry
	ConstructCatch
)

var constructNames = [...]string{"none", "if", "else", "for", "while", "do", "switch", "try", "catch"}

// String returns the statement keyword, or "none".
func (c Construct) String() string {
	if int(c) < 0 || int(c) >= len(constructNames) {
		return "unknown"
	}
	return constructNames[c]
}

// ParseConstruct maps a keyword to a Construct.
func ParseConstruct(s string) (Construct, bool) {
	for i, n := range constructNames {
		if n == s {
			return Construct(i), true
		}
	}
	return ConstructNone, false
}

// IsLoop reports whether the construct repeats its body.
func (c Construct) IsLoop() bool {
	return c == ConstructFor || c == ConstructWhile || c == ConstructDo
}

// CallExpr is one call expression inside a function body.
//
// Description:
//
//	Callee is the qualified name the front-end resolved, "Dummy::fun" for a
//	member call or "empty" for a free function. Enclosing lists the control
//	constructs around the call, outermost first. Args holds calls that appear
//	inside this call's argument list, as in arg0(arg1(3)).
type CallExpr struct {
	Callee    string
	Enclosing []Construct
	Args      []CallExpr
}

// Param is one method or function parameter.
type Param struct {
	Name string
	Type SemanticType
}

// Method is a member function of a Declaration.
type Method struct {
	Name        string
	Params      []Param
	Return      SemanticType
	PureVirtual bool
	Virtual     bool
	Const       bool
	Visibility  Visibility
	Kind        MethodKind

	// HasBody is true when the front-end saw an inline definition.
	HasBody bool
	Body    []CallExpr
}

// Instrumentable reports whether a stub overrides and counts this method.
// Constructors, copy constructors, destructors and operator= are not.
func (m *Method) Instrumentable() bool {
	return m.Kind == MethodNormal
}

// Signature renders "name(int, char) const" for matching overrides.
func (m *Method) Signature() string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	sb.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Type.String())
	}
	sb.WriteByte(')')
	if m.Const {
		sb.WriteString(" const")
	}
	return sb.String()
}

// Field is a data member.
type Field struct {
	Name       string
	Type       SemanticType
	Owner      string
	Visibility Visibility
}

// Declaration is a class or interface.
//
// Description:
//
//	Bases are weak references by name; SymbolTable resolves them lazily and
//	an unknown base stays an opaque link. FullyDefined is false for a pure
//	forward declaration ("class Forward_ptr;").
//
// Thread Safety: Immutable after ingestion; safe for concurrent reads.
type Declaration struct {
	Name         string
	Kind         DeclKind
	Bases        []string
	Methods      []*Method
	Fields       []*Field
	FullyDefined bool

	// Unit is the input unit the declaration came from, for diagnostics.
	Unit string
}

// IsInterface reports whether the declaration is tagged as an interface.
func (d *Declaration) IsInterface() bool {
	return d.Kind == KindInterface
}

// InstrumentableMethods returns the methods a stub would override, in
// declaration order.
func (d *Declaration) InstrumentableMethods() []*Method {
	out := make([]*Method, 0, len(d.Methods))
	for _, m := range d.Methods {
		if m.Instrumentable() {
			out = append(out, m)
		}
	}
	return out
}

// Normalize fills in method kinds and field owners the front-end left unset.
// A method named after the class is a constructor (copy constructor when its
// single parameter is a reference to the class), "~Name" is the destructor
// and "operator=" is assignment.
func (d *Declaration) Normalize() {
	short := d.Name
	if i := strings.LastIndex(short, "::"); i >= 0 {
		short = short[i+2:]
	}
	for _, m := range d.Methods {
		if m.Kind != MethodNormal {
			continue
		}
		m.Kind = InferMethodKind(short, m)
	}
	for _, f := range d.Fields {
		if f.Owner == "" {
			f.Owner = d.Name
		}
	}
}

// InferMethodKind derives the special-member kind of m inside class short.
func InferMethodKind(short string, m *Method) MethodKind {
	name := strings.TrimSpace(m.Name)
	switch {
	case name == "~"+short:
		return MethodDestructor
	case name == "operator=" || name == "operator =":
		return MethodAssign
	case name == short:
		if len(m.Params) == 1 {
			p := m.Params[0].Type
			if p.Kind == TypeReference {
				if target, ok := p.Target(); ok && (target == short || strings.HasSuffix(target, "::"+short)) {
					return MethodCopyConstructor
				}
			}
		}
		return MethodConstructor
	default:
		return MethodNormal
	}
}

// Function is a function body: a free function or an out-of-line or inline
// method definition. Name is qualified ("Methods::func", "Methods::~Methods").
type Function struct {
	Name   string
	Owner  string
	Params []Param
	Return SemanticType
	Calls  []CallExpr
}

// Key identifies the body for merging: the name plus parameter types, so a
// constructor and a copy constructor sharing "Methods::Methods" stay apart.
func (f *Function) Key() string {
	var sb strings.Builder
	sb.WriteString(f.Name)
	sb.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Type.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Unit is everything one front-end invocation produced, e.g. one header.
type Unit struct {
	Name         string
	Declarations []*Declaration
	Functions    []*Function
}

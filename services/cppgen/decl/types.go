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
	"strings"
)

// TypeKind tags the variant held by a SemanticType.
type TypeKind int

const (
	// TypePrimitive is a builtin type such as int, char or void.
	TypePrimitive TypeKind = iota

	// TypePointer wraps Inner as T*.
	TypePointer

	// TypeReference wraps Inner as T&, or T&& when Rvalue is set.
	TypeReference

	// TypeNamed names a Declaration by its qualified name.
	TypeNamed
)

// String returns the lowercase name of the kind.
func (k TypeKind) String() string {
	switch k {
	case TypePrimitive:
		return "primitive"
	case TypePointer:
		return "pointer"
	case TypeReference:
		return "reference"
	case TypeNamed:
		return "named"
	default:
		return "unknown"
	}
}

// SemanticType is a resolved C++ type in the simplified model.
//
// Description:
//
//	A tagged variant over Primitive, Pointer(inner), Reference(inner) and
//	NamedType. Pointer and Reference carry Inner; Primitive and Named carry
//	Name. Const applies to the outermost layer only, so "const int* const"
//	is Pointer{Const: true, Inner: Primitive{Name: "int", Const: true}}.
//
// Thread Safety: Value type. Inner is never mutated after construction.
type SemanticType struct {
	Kind  TypeKind
	Name  string
	Inner *SemanticType
	Const bool

	// Rvalue marks a T&& reference.
	Rvalue bool
}

// Primitive returns a builtin type.
func Primitive(name string) SemanticType {
	return SemanticType{Kind: TypePrimitive, Name: name}
}

// Void returns the void primitive.
func Void() SemanticType {
	return Primitive("void")
}

// Named returns a by-value use of the named declaration.
func Named(name string) SemanticType {
	return SemanticType{Kind: TypeNamed, Name: name}
}

// PointerTo wraps t as t*.
func PointerTo(t SemanticType) SemanticType {
	inner := t
	return SemanticType{Kind: TypePointer, Inner: &inner}
}

// ReferenceTo wraps t as t&.
func ReferenceTo(t SemanticType) SemanticType {
	inner := t
	return SemanticType{Kind: TypeReference, Inner: &inner}
}

// RvalueReferenceTo wraps t as t&&.
func RvalueReferenceTo(t SemanticType) SemanticType {
	r := ReferenceTo(t)
	r.Rvalue = true
	return r
}

// AsConst returns a copy of t with the outermost layer const-qualified.
func (t SemanticType) AsConst() SemanticType {
	t.Const = true
	return t
}

// Unqualified returns a copy of t without the outermost const.
func (t SemanticType) Unqualified() SemanticType {
	t.Const = false
	return t
}

// IsVoid reports whether t is exactly void (not void*).
func (t SemanticType) IsVoid() bool {
	return t.Kind == TypePrimitive && t.Name == "void"
}

// IsIndirect reports whether t is a pointer or reference.
func (t SemanticType) IsIndirect() bool {
	return t.Kind == TypePointer || t.Kind == TypeReference
}

// Target returns the declaration name reached through any number of pointer
// and reference layers. ok is false when the innermost type is a primitive.
func (t SemanticType) Target() (name string, ok bool) {
	cur := t
	for cur.IsIndirect() {
		if cur.Inner == nil {
			return "", false
		}
		cur = *cur.Inner
	}
	if cur.Kind != TypeNamed {
		return "", false
	}
	return cur.Name, true
}

// Elem returns the wrapped type of a pointer or reference, or t itself.
func (t SemanticType) Elem() SemanticType {
	if t.IsIndirect() && t.Inner != nil {
		return *t.Inner
	}
	return t
}

// Equal reports structural equality.
func (t SemanticType) Equal(o SemanticType) bool {
	if t.Kind != o.Kind || t.Name != o.Name || t.Const != o.Const || t.Rvalue != o.Rvalue {
		return false
	}
	if t.Inner == nil || o.Inner == nil {
		return t.Inner == nil && o.Inner == nil
	}
	return t.Inner.Equal(*o.Inner)
}

// String renders the C++ spelling of t.
func (t SemanticType) String() string {
	switch t.Kind {
	case TypePointer, TypeReference:
		inner := "void"
		if t.Inner != nil {
			inner = t.Inner.String()
		}
		sym := "*"
		switch {
		case t.Kind == TypeReference && t.Rvalue:
			sym = "&&"
		case t.Kind == TypeReference:
			sym = "&"
		}
		if t.Const {
			return inner + sym + " const"
		}
		return inner + sym
	default:
		if t.Const {
			return "const " + t.Name
		}
		return t.Name
	}
}

// Words returns the identifier fragments used when deriving method IDs:
// "const int&" yields ["int", "ref"], "Foo::Bar*" yields ["Foo_Bar", "ptr"].
func (t SemanticType) Words() []string {
	switch t.Kind {
	case TypePointer:
		return append(t.Elem().Words(), "ptr")
	case TypeReference:
		if t.Rvalue {
			return append(t.Elem().Words(), "rref")
		}
		return append(t.Elem().Words(), "ref")
	default:
		name := strings.ReplaceAll(t.Name, "::", "_")
		name = strings.Join(strings.Fields(name), "_")
		return []string{name}
	}
}

// builtinWords are the tokens that make up multi-word builtin types.
var builtinWords = map[string]bool{
	"void": true, "bool": true, "char": true, "wchar_t": true,
	"char8_t": true, "char16_t": true, "char32_t": true,
	"short": true, "int": true, "long": true, "float": true, "double": true,
	"signed": true, "unsigned": true,
}

// builtinNames are single-token library types treated as primitives.
var builtinNames = map[string]bool{
	"size_t": true, "std::size_t": true, "ptrdiff_t": true, "std::ptrdiff_t": true,
	"int8_t": true, "int16_t": true, "int32_t": true, "int64_t": true,
	"uint8_t": true, "uint16_t": true, "uint32_t": true, "uint64_t": true,
	"std::int8_t": true, "std::int16_t": true, "std::int32_t": true, "std::int64_t": true,
	"std::uint8_t": true, "std::uint16_t": true, "std::uint32_t": true, "std::uint64_t": true,
	"intptr_t": true, "uintptr_t": true,
}

// IsPrimitiveName reports whether a (const-stripped) spelling names a builtin.
func IsPrimitiveName(name string) bool {
	if builtinNames[name] {
		return true
	}
	words := strings.Fields(name)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !builtinWords[w] {
			return false
		}
	}
	return true
}

// ParseType converts a C++ type spelling into a SemanticType.
//
// Description:
//
//	Handles the declarator forms the simplified model supports: cv
//	qualifiers, any number of '*' and '&' layers, trailing "const" on
//	pointers, elaborated "class"/"struct" keywords and multi-word builtins.
//	Anything that is not a builtin is a NamedType, including typedefs the
//	front-end did not resolve.
//
// Inputs:
//
//	spelling - The type as written, e.g. "const MadeUp** const".
//
// Outputs:
//
//	SemanticType - The parsed type. An empty spelling yields void.
//
// Thread Safety: Safe for concurrent use (stateless function).
func ParseType(spelling string) SemanticType {
	s := strings.TrimSpace(spelling)
	if s == "" {
		return Void()
	}

	// Trailing const qualifies the outermost layer: "void* const", "int const".
	if fields := strings.Fields(s); len(fields) > 1 && fields[len(fields)-1] == "const" {
		rest := strings.TrimSpace(strings.TrimSuffix(s, "const"))
		return ParseType(rest).AsConst()
	}

	switch {
	case strings.HasSuffix(s, "&&"):
		return RvalueReferenceTo(ParseType(s[:len(s)-2]))
	case strings.HasSuffix(s, "&"):
		return ReferenceTo(ParseType(s[:len(s)-1]))
	case strings.HasSuffix(s, "*"):
		return PointerTo(ParseType(s[:len(s)-1]))
	}

	isConst := false
	var words []string
	for _, w := range strings.Fields(s) {
		switch w {
		case "const":
			isConst = true
		case "volatile", "class", "struct", "enum", "typename", "mutable":
		default:
			words = append(words, w)
		}
	}
	name := strings.Join(words, " ")

	var t SemanticType
	if IsPrimitiveName(name) {
		t = Primitive(name)
	} else {
		t = Named(name)
	}
	t.Const = isConst
	return t
}

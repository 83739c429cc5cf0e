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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		spelling string
		kind     TypeKind
		render   string
		target   string
		words    []string
	}{
		{"int", TypePrimitive, "int", "", []string{"int"}},
		{"void", TypePrimitive, "void", "", []string{"void"}},
		{"unsigned long", TypePrimitive, "unsigned long", "", []string{"unsigned_long"}},
		{"const int", TypePrimitive, "const int", "", []string{"int"}},
		{"char*", TypePointer, "char*", "", []string{"char", "ptr"}},
		{"int&", TypeReference, "int&", "", []string{"int", "ref"}},
		{"MadeUp&&", TypeReference, "MadeUp&&", "MadeUp", []string{"MadeUp", "rref"}},
		{"const int&&", TypeReference, "const int&&", "", []string{"int", "rref"}},
		{"Forward_ptr*", TypePointer, "Forward_ptr*", "Forward_ptr", []string{"Forward_ptr", "ptr"}},
		{"const MadeUp&", TypeReference, "const MadeUp&", "MadeUp", []string{"MadeUp", "ref"}},
		{"const MadeUp** const", TypePointer, "const MadeUp** const", "MadeUp", []string{"MadeUp", "ptr", "ptr"}},
		{"const void* const", TypePointer, "const void* const", "", []string{"void", "ptr"}},
		{"class Impl", TypeNamed, "Impl", "Impl", []string{"Impl"}},
		{"ns::Widget", TypeNamed, "ns::Widget", "ns::Widget", []string{"ns_Widget"}},
		{"size_t", TypePrimitive, "size_t", "", []string{"size_t"}},
	}
	for _, tt := range tests {
		t.Run(tt.spelling, func(t *testing.T) {
			got := ParseType(tt.spelling)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.render, got.String())

			target, ok := got.Target()
			if tt.target == "" {
				assert.False(t, ok)
			} else {
				require.True(t, ok)
				assert.Equal(t, tt.target, target)
			}
			assert.Equal(t, tt.words, got.Words())
		})
	}
}

func TestParseType_EmptyIsVoid(t *testing.T) {
	assert.True(t, ParseType("").IsVoid())
	assert.True(t, ParseType("  void ").IsVoid())
	assert.False(t, ParseType("void*").IsVoid())
}

func TestSemanticType_Equal(t *testing.T) {
	a := PointerTo(Named("Foo"))
	b := ParseType("Foo*")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(ReferenceTo(Named("Foo"))))
	assert.False(t, a.Equal(a.AsConst()))
	assert.True(t, a.AsConst().Unqualified().Equal(a))
}

func TestInferMethodKind(t *testing.T) {
	tests := []struct {
		name   string
		method *Method
		want   MethodKind
	}{
		{"ctor", &Method{Name: "Simple"}, MethodConstructor},
		{"ctor with arg", &Method{Name: "Simple", Params: []Param{{Name: "foo", Type: Primitive("char")}}}, MethodConstructor},
		{"copy ctor", &Method{Name: "Simple", Params: []Param{{Type: ParseType("const Simple&")}}}, MethodCopyConstructor},
		{"dtor", &Method{Name: "~Simple"}, MethodDestructor},
		{"assign", &Method{Name: "operator="}, MethodAssign},
		{"normal", &Method{Name: "func1"}, MethodNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferMethodKind("Simple", tt.method))
		})
	}
}

func TestMethod_Signature(t *testing.T) {
	m := &Method{
		Name:   "func7",
		Params: []Param{{Name: "y", Type: ParseType("int&")}, {Name: "yy", Type: ParseType("char*")}},
		Const:  true,
	}
	assert.Equal(t, "func7(int&, char*) const", m.Signature())
}

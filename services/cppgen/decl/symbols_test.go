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

	"github.com/AleutianAI/cppgen/services/cppgen/diag"
)

// makeClass builds a fully defined class with the given fields.
func makeClass(unit, name string, fields ...*Field) *Declaration {
	d := &Declaration{Name: name, Kind: KindClass, FullyDefined: true, Unit: unit, Fields: fields}
	d.Normalize()
	return d
}

func makeForward(unit, name string) *Declaration {
	return &Declaration{Name: name, Kind: KindClass, Unit: unit}
}

func TestSymbolTable_MergeAssignsStableIDs(t *testing.T) {
	st := NewSymbolTable()
	diags := st.Merge(
		&Unit{Name: "a.hpp", Declarations: []*Declaration{makeClass("a.hpp", "A"), makeClass("a.hpp", "B")}},
		&Unit{Name: "b.hpp", Declarations: []*Declaration{makeClass("b.hpp", "C")}},
	)
	require.Equal(t, 0, diags.Len())
	require.Equal(t, 3, st.Len())

	for i, name := range []string{"A", "B", "C"} {
		id, ok := st.ID(name)
		require.True(t, ok)
		assert.Equal(t, DeclID(i), id)
		assert.Equal(t, name, st.Get(id).Name)
	}
	assert.Equal(t, []string{"a.hpp", "b.hpp"}, st.Units())
	assert.Nil(t, st.Get(42))
}

func TestSymbolTable_DefinitionReplacesForward(t *testing.T) {
	st := NewSymbolTable()
	full := makeClass("m.hpp", "Forward_decl")
	diags := st.Merge(&Unit{Name: "m.hpp", Declarations: []*Declaration{
		makeForward("m.hpp", "Forward_decl"),
		makeClass("m.hpp", "ToForward", &Field{Name: "fwd_decl", Type: ParseType("Forward_decl*")}),
		full,
	}})
	require.Equal(t, 0, diags.Len())

	got, ok := st.Lookup("Forward_decl")
	require.True(t, ok)
	assert.Same(t, full, got)
	id, _ := st.ID("Forward_decl")
	assert.Equal(t, DeclID(0), id, "replacement keeps the first-seen ID")
}

func TestSymbolTable_ForwardNeverReplacesDefinition(t *testing.T) {
	st := NewSymbolTable()
	full := makeClass("a.hpp", "Impl")
	st.Merge(
		&Unit{Name: "a.hpp", Declarations: []*Declaration{full}},
		&Unit{Name: "b.hpp", Declarations: []*Declaration{makeForward("b.hpp", "Impl")}},
	)
	got, _ := st.Lookup("Impl")
	assert.Same(t, full, got)
	assert.True(t, got.FullyDefined)
}

func TestSymbolTable_IdenticalDefinitionsCollapse(t *testing.T) {
	st := NewSymbolTable()
	diags := st.Merge(
		&Unit{Name: "a.cpp", Declarations: []*Declaration{makeClass("a.cpp", "Impl")}},
		&Unit{Name: "b.cpp", Declarations: []*Declaration{makeClass("b.cpp", "Impl")}},
	)
	assert.Equal(t, 0, diags.Len())
	assert.Equal(t, 1, st.Len())
}

func TestSymbolTable_DifferingDefinitionFirstWins(t *testing.T) {
	st := NewSymbolTable()
	first := makeClass("a.cpp", "Impl", &Field{Name: "x", Type: Primitive("int")})
	diags := st.Merge(
		&Unit{Name: "a.cpp", Declarations: []*Declaration{first}},
		&Unit{Name: "b.cpp", Declarations: []*Declaration{makeClass("b.cpp", "Impl", &Field{Name: "y", Type: Primitive("char")})}},
	)
	require.Equal(t, 1, diags.Len())
	d := diags.Items()[0]
	assert.Equal(t, diag.KindDuplicateDefinition, d.Kind)
	assert.Equal(t, "Impl", d.Subject)

	got, _ := st.Lookup("Impl")
	assert.Same(t, first, got)
}

func TestSymbolTable_FunctionBodies(t *testing.T) {
	st := NewSymbolTable()
	diags := st.Merge(
		&Unit{Name: "a.cpp", Functions: []*Function{
			{Name: "single_call", Calls: []CallExpr{{Callee: "empty"}}},
			{Name: "declared_only"},
		}},
		&Unit{Name: "b.cpp", Functions: []*Function{
			{Name: "single_call", Calls: []CallExpr{{Callee: "other"}}},
			{Name: "declared_only", Calls: []CallExpr{{Callee: "empty"}}},
		}},
	)
	require.Equal(t, 1, diags.Len())
	assert.Equal(t, "single_call", diags.Items()[0].Subject)

	fns := st.Functions()
	require.Len(t, fns, 2)
	assert.Equal(t, "empty", fns[0].Calls[0].Callee, "first body wins")
	assert.Equal(t, "empty", fns[1].Calls[0].Callee, "a body replaces a bodiless declaration")
}

func TestSymbolTable_ResolveBases(t *testing.T) {
	st := NewSymbolTable()
	derived := makeClass("a.hpp", "Derived")
	derived.Bases = []string{"Base", "Missing"}
	st.Merge(&Unit{Name: "a.hpp", Declarations: []*Declaration{makeClass("a.hpp", "Base"), derived}})

	diags := st.ResolveBases()
	require.Equal(t, 1, diags.Len())
	assert.Equal(t, diag.KindUnresolvedReference, diags.Items()[0].Kind)
	assert.Contains(t, diags.Items()[0].Message, "Missing")

	bases := st.Bases(derived)
	require.Len(t, bases, 1)
	assert.Equal(t, "Base", bases[0].Name)
	assert.Equal(t, []string{"Base", "Missing"}, derived.Bases, "unresolved link is retained")
}

func TestValidate(t *testing.T) {
	pure := &Method{Name: "run", PureVirtual: true, Virtual: true, Return: Void()}
	plain := &Method{Name: "run", Return: Void()}
	dtor := &Method{Name: "~Ifs", Kind: MethodDestructor, Virtual: true}

	tests := []struct {
		name    string
		decl    *Declaration
		wantErr bool
	}{
		{"interface with pure methods", &Declaration{Name: "Ifs", Kind: KindInterface, FullyDefined: true, Methods: []*Method{dtor, pure}}, false},
		{"class with plain methods", &Declaration{Name: "C", Kind: KindClass, FullyDefined: true, Methods: []*Method{plain}}, false},
		{"pure virtual in class", &Declaration{Name: "C", Kind: KindClass, FullyDefined: true, Methods: []*Method{pure}}, true},
		{"non-pure in interface", &Declaration{Name: "Ifs", Kind: KindInterface, FullyDefined: true, Methods: []*Method{pure, plain}}, true},
		{"no name", &Declaration{FullyDefined: true}, true},
		{"forward with members", &Declaration{Name: "F", Methods: []*Method{plain}}, true},
		{"forward only", &Declaration{Name: "F"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.decl)
			if tt.wantErr {
				assert.ErrorIs(t, err, diag.ErrMalformedDeclaration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSymbolTable_ConstructorOverloadsKeptApart(t *testing.T) {
	st := NewSymbolTable()
	diags := st.Merge(&Unit{Name: "methods.cpp", Functions: []*Function{
		{Name: "Methods::Methods", Owner: "Methods", Calls: []CallExpr{{Callee: "ctor"}}},
		{Name: "Methods::Methods", Owner: "Methods", Params: []Param{{Type: ParseType("const Methods&")}},
			Calls: []CallExpr{{Callee: "copy_ctor"}}},
	}})
	assert.Equal(t, 0, diags.Len())
	require.Len(t, st.Functions(), 2)
	assert.Equal(t, "Methods::Methods(const Methods&)", st.Functions()[1].Key())
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package emit

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cppgen/services/cppgen/classify"
	"github.com/AleutianAI/cppgen/services/cppgen/decl"
)

func class(name string, fields ...string) *decl.Declaration {
	d := &decl.Declaration{Name: name, Kind: decl.KindClass, FullyDefined: true}
	for i := 0; i+1 < len(fields); i += 2 {
		d.Fields = append(d.Fields, &decl.Field{Name: fields[i], Type: decl.ParseType(fields[i+1])})
	}
	d.Normalize()
	return d
}

func classified(t *testing.T, decls ...*decl.Declaration) (*decl.SymbolTable, *classify.Result) {
	t.Helper()
	st := decl.NewSymbolTable()
	diags := st.Merge(&decl.Unit{Name: "test.hpp", Declarations: decls})
	require.Equal(t, 0, diags.Len(), diags.String())
	res, err := classify.Classify(context.Background(), st)
	require.NoError(t, err)
	return st, res
}

func TestDeclarations_OwnedBeforeOwner(t *testing.T) {
	st, res := classified(t,
		class("Outer", "inner", "Inner", "peer", "Peer*"),
		class("Inner", "x", "int"),
		class("Peer", "back", "Outer&"),
	)
	src := string(Declarations(st, res))

	outer := strings.Index(src, "class Outer {")
	inner := strings.Index(src, "class Inner {")
	require.NotEqual(t, -1, outer)
	require.NotEqual(t, -1, inner)
	assert.Less(t, inner, outer)

	// Referenced targets are forward declared ahead of every definition.
	assert.Less(t, strings.Index(src, "class Peer;"), inner)
	assert.Less(t, strings.Index(src, "class Outer;"), inner)

	assert.Contains(t, src, "    Inner inner;")
	assert.Contains(t, src, "    Peer* peer;")
	assert.Contains(t, src, "    Outer& back;")
}

func TestDeclarations_MembersAndAccess(t *testing.T) {
	getter := &decl.Method{Name: "value", Return: decl.ParseType("int"), Const: true}
	hidden := &decl.Method{Name: "func3", Return: decl.ParseType("char*"), PureVirtual: true, Virtual: true, Visibility: decl.Private}
	d := &decl.Declaration{
		Name: "ns::Widget", Kind: decl.KindClass, FullyDefined: true, Bases: []string{"Base"},
		Methods: []*decl.Method{
			{Name: "Widget"},
			{Name: "~Widget", Virtual: true},
			getter,
			hidden,
		},
		Fields: []*decl.Field{{Name: "count_", Type: decl.ParseType("int"), Visibility: decl.Private}},
	}
	d.Normalize()
	st, res := classified(t, class("Base"), d)
	src := string(Declarations(st, res))

	assert.Contains(t, src, "namespace ns {\nclass Widget : public Base {\npublic:\n"+
		"    Widget();\n"+
		"    virtual ~Widget();\n"+
		"    int value() const;\n"+
		"private:\n"+
		"    virtual char* func3() = 0;\n"+
		"    int count_;\n"+
		"};\n} // namespace ns\n")
	assert.Less(t, strings.Index(src, "class Base {"), strings.Index(src, "class Widget"))
}

func TestDeclarations_ForwardOnly(t *testing.T) {
	st, res := classified(t,
		&decl.Declaration{Name: "Opaque", Kind: decl.KindClass},
		class("User", "p", "Opaque*"),
	)
	src := string(Declarations(st, res))
	assert.Equal(t, 2, strings.Count(src, "class Opaque;"))
	assert.Contains(t, src, "class User {\npublic:\n    Opaque* p;\n};")
}

func TestDeclarations_Deterministic(t *testing.T) {
	build := func() []byte {
		st, res := classified(t,
			class("C", "b", "B"),
			class("B", "a", "A"),
			class("A"),
		)
		return Declarations(st, res)
	}
	first := build()
	assert.Equal(t, first, build())
	src := string(first)
	assert.Less(t, strings.Index(src, "class A {"), strings.Index(src, "class B {"))
	assert.Less(t, strings.Index(src, "class B {"), strings.Index(src, "class C {"))
}

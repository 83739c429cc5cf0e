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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cppgen/services/cppgen/diag"
)

const simpleYAML = `
name: class_interface.hpp
declarations:
  - name: Simple
    kind: interface
    methods:
      - name: Simple
      - name: Simple
        params:
          - type: const Simple&
      - name: ~Simple
        virtual: true
      - name: operator=
        pure: true
        return: Simple&
        params:
          - type: const Simple&
      - name: func1
        pure: true
        return: int
        params:
          - name: a
            type: int
          - name: b
            type: char
      - name: func3
        pure: true
        return: char*
        visibility: private
`

func TestDecodeUnit_YAMLInterface(t *testing.T) {
	u, err := DecodeUnit([]byte(simpleYAML), FormatYAML)
	require.NoError(t, err)
	require.Len(t, u.Declarations, 1)

	d := u.Declarations[0]
	assert.Equal(t, "Simple", d.Name)
	assert.True(t, d.IsInterface())
	assert.True(t, d.FullyDefined)
	assert.Equal(t, "class_interface.hpp", d.Unit)

	kinds := make([]MethodKind, 0, len(d.Methods))
	for _, m := range d.Methods {
		kinds = append(kinds, m.Kind)
	}
	assert.Equal(t, []MethodKind{
		MethodConstructor, MethodCopyConstructor, MethodDestructor, MethodAssign, MethodNormal, MethodNormal,
	}, kinds)

	inst := d.InstrumentableMethods()
	require.Len(t, inst, 2)
	assert.Equal(t, "func1(int, char)", inst[0].Signature())
	assert.Equal(t, Private, inst[1].Visibility)
	assert.Equal(t, "char*", inst[1].Return.String())

	assert.NoError(t, ValidateUnit(u))
}

func TestDecodeUnit_JSONWithBodies(t *testing.T) {
	data := []byte(`{
	  "name": "methods.cpp",
	  "declarations": [
	    {"name": "Forward_decl", "forward": true},
	    {"name": "ToForward", "fields": [{"name": "fwd_decl", "type": "Forward_decl*"}]}
	  ],
	  "functions": [
	    {"name": "cond", "calls": [
	      {"callee": "empty", "in": ["if"]},
	      {"callee": "arg0", "args": [{"callee": "arg1"}]}
	    ]}
	  ]
	}`)
	u, err := DecodeUnit(data, FormatJSON)
	require.NoError(t, err)

	require.Len(t, u.Declarations, 2)
	assert.False(t, u.Declarations[0].FullyDefined)
	assert.Equal(t, KindClass, u.Declarations[1].Kind)
	assert.Equal(t, "ToForward", u.Declarations[1].Fields[0].Owner)

	require.Len(t, u.Functions, 1)
	calls := u.Functions[0].Calls
	require.Len(t, calls, 2)
	assert.Equal(t, []Construct{ConstructIf}, calls[0].Enclosing)
	require.Len(t, calls[1].Args, 1)
	assert.Equal(t, "arg1", calls[1].Args[0].Callee)
	assert.True(t, u.Functions[0].Return.IsVoid())
}

func TestDecodeUnit_ShapeViolationsAreMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing unit name", `{"declarations": []}`},
		{"missing declaration name", `{"name": "u", "declarations": [{"kind": "class"}]}`},
		{"bad kind", `{"name": "u", "declarations": [{"name": "A", "kind": "union"}]}`},
		{"bad construct", `{"name": "u", "functions": [{"name": "f", "calls": [{"callee": "g", "in": ["goto"]}]}]}`},
		{"field without type", `{"name": "u", "declarations": [{"name": "A", "fields": [{"name": "x"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeUnit([]byte(tt.data), FormatJSON)
			require.Error(t, err)
			assert.ErrorIs(t, err, diag.ErrMalformedDeclaration)
		})
	}
}

func TestDecodeUnit_SyntaxError(t *testing.T) {
	_, err := DecodeUnit([]byte(`{"name":`), FormatJSON)
	require.Error(t, err)
	assert.NotErrorIs(t, err, diag.ErrMalformedDeclaration)

	_, err = DecodeUnit([]byte(`{}`), Format("toml"))
	assert.Error(t, err)
}

func TestInferKind(t *testing.T) {
	data := []byte(`{
	  "name": "u",
	  "declarations": [
	    {"name": "Ifs", "methods": [{"name": "~Ifs", "virtual": true}, {"name": "run", "pure": true}]},
	    {"name": "Mixed", "methods": [{"name": "run", "pure": true}, {"name": "go"}]},
	    {"name": "Empty"},
	    {"name": "WithData", "methods": [{"name": "run", "pure": true}], "fields": [{"name": "x", "type": "int"}]}
	  ]
	}`)
	u, err := DecodeUnit(data, FormatJSON)
	require.NoError(t, err)

	want := map[string]DeclKind{
		"Ifs":      KindInterface,
		"Mixed":    KindClass,
		"Empty":    KindClass,
		"WithData": KindClass,
	}
	for _, d := range u.Declarations {
		assert.Equal(t, want[d.Name], d.Kind, d.Name)
	}
}

func TestLoadUnitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(simpleYAML), 0o644))

	u, err := LoadUnitFile(path)
	require.NoError(t, err)
	assert.Equal(t, "class_interface.hpp", u.Name)

	_, err = LoadUnitFile(filepath.Join(dir, "unit.txt"))
	assert.Error(t, err)

	_, err = LoadUnitFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestFormatForPath(t *testing.T) {
	f, ok := FormatForPath("a/b.YML")
	assert.True(t, ok)
	assert.Equal(t, FormatYAML, f)

	f, ok = FormatForPath("x.json")
	assert.True(t, ok)
	assert.Equal(t, FormatJSON, f)

	_, ok = FormatForPath("x.hpp")
	assert.False(t, ok)
}

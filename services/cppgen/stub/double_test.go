// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stub

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ifs1Double(t *testing.T) *Double {
	t.Helper()
	g := newGen(t, ifs1Table(t))
	s, err := g.Generate(context.Background(), "Ifs1")
	require.NoError(t, err)
	return NewDouble(s)
}

func invoke(t *testing.T, d *Double, id string, args ...any) any {
	t.Helper()
	res, err := d.Invoke(id, args...)
	require.NoError(t, err)
	return res
}

func TestDouble_CountersAndParams(t *testing.T) {
	d := ifs1Double(t)

	assert.Equal(t, 0, d.Counter("run").Count())
	assert.Equal(t, 0, d.Counter("ifs2_func1_int_char").Count())

	invoke(t, d, "run")
	invoke(t, d, "ifs2_func1_int_char", 42, 'x')

	assert.Equal(t, 1, d.Counter("run").Count())
	assert.Equal(t, 1, d.Counter("ifs2_func1_int_char").Count())
	assert.Equal(t, []any{42, 'x'}, d.Counter("ifs2_func1_int_char").Params())
	assert.Equal(t, 'x', d.Counter("ifs2_func1_int_char").Param(1))
	assert.Nil(t, d.Counter("ifs2_func1_int_char").Param(2))
	assert.Nil(t, d.Counter("run").Params())
}

func TestDouble_StaticReturn(t *testing.T) {
	d := ifs1Double(t)

	assert.Equal(t, 0, invoke(t, d, "ifs2_func1_int_char", 1, 'a'), "zero value before set")

	d.Static("ifs2_func1_int_char").Set(42)
	assert.Equal(t, 42, invoke(t, d, "ifs2_func1_int_char", 42, 'x'))
	assert.Nil(t, d.Static("run"), "void methods have no static return")
}

func TestDouble_CallbackTakesPrecedence(t *testing.T) {
	d := ifs1Double(t)
	var got []any
	d.Static("ifs2_func1_int_char").Set(7)
	d.Callback("ifs2_func1_int_char").Set(CallbackFunc(func(args ...any) any {
		got = args
		return 42
	}))

	assert.Equal(t, 42, invoke(t, d, "ifs2_func1_int_char", 8, 'a'))
	assert.Equal(t, []any{8, 'a'}, got)
	assert.Equal(t, 1, d.Counter("ifs2_func1_int_char").Count(), "counted exactly once")
}

func TestDouble_VoidCallbackResultDiscarded(t *testing.T) {
	d := ifs1Double(t)
	called := false
	d.Callback("run").Set(CallbackFunc(func(...any) any {
		called = true
		return "ignored"
	}))

	assert.Nil(t, invoke(t, d, "run"))
	assert.True(t, called)
	assert.Equal(t, 1, d.Counter("run").Count())
}

func TestDouble_ResetIsPerAccessor(t *testing.T) {
	d := ifs1Double(t)
	invoke(t, d, "run")
	invoke(t, d, "ifs2_func1_int_char", 1, 'b')
	d.Static("ifs2_func1_int_char").Set(42)
	d.Callback("run").Set(CallbackFunc(func(...any) any { return nil }))

	Reset(d.Counter("run"))
	assert.Equal(t, 0, d.Counter("run").Count())
	assert.NotNil(t, d.Callback("run").Get(), "callback untouched by counter reset")
	assert.Equal(t, 1, d.Counter("ifs2_func1_int_char").Count(), "sibling untouched")

	Reset(d.Callback("run"))
	assert.Nil(t, d.Callback("run").Get())

	Reset(d.Static("ifs2_func1_int_char"))
	assert.False(t, d.Static("ifs2_func1_int_char").IsSet())
	assert.Equal(t, 0, d.Static("ifs2_func1_int_char").Value())
	assert.Equal(t, []any{1, 'b'}, d.Counter("ifs2_func1_int_char").Params())

	Reset(d.Counter("ifs2_func1_int_char"))
	assert.Nil(t, d.Counter("ifs2_func1_int_char").Params())
}

func TestDouble_ResetMissingAccessors(t *testing.T) {
	d := ifs1Double(t)
	invoke(t, d, "run")

	require.Nil(t, d.Static("run"), "void methods have no static return")
	require.Nil(t, d.Counter("nope"))
	require.Nil(t, d.Callback("nope"))
	assert.NotPanics(t, func() {
		Reset(d.Static("run"))
		Reset(d.Static("nope"))
		Reset(d.Counter("nope"))
		Reset(d.Callback("nope"))
	})
	assert.Equal(t, 1, d.Counter("run").Count())
}

func TestDouble_NestedDoubles(t *testing.T) {
	first := ifs1Double(t)
	second := ifs1Double(t)

	n1, ok := invoke(t, first, "get_ifc3").(*Double)
	require.True(t, ok)
	n2, ok := invoke(t, second, "get_ifc3").(*Double)
	require.True(t, ok)
	require.NotSame(t, n1, n2)

	assert.Equal(t, 0, n1.Counter("dostuff").Count())
	assert.Equal(t, 0, n2.Counter("dostuff").Count())

	invoke(t, n1, "dostuff")
	assert.Equal(t, 1, n1.Counter("dostuff").Count())
	assert.Equal(t, 0, n2.Counter("dostuff").Count())

	assert.Same(t, n1, first.Nested("get_ifc3"), "the owned instance is returned every time")
	assert.Same(t, n1, invoke(t, first, "get_ifc3"))
	assert.Equal(t, 2, first.Counter("get_ifc3").Count())
	assert.Nil(t, first.Nested("run"))
}

func TestDouble_NestedCallbackOverridesOwnedInstance(t *testing.T) {
	d := ifs1Double(t)
	other := NewDouble(d.Stub().Methods[2].Nested)
	d.Callback("get_ifc3").Set(CallbackFunc(func(...any) any { return other }))

	got := invoke(t, d, "get_ifc3").(*Double)
	invoke(t, got, "dostuff")

	assert.Same(t, other, got)
	assert.Equal(t, 1, other.Counter("dostuff").Count())
	assert.Equal(t, 1, d.Counter("get_ifc3").Count())
}

func TestDouble_MutuallyRecursiveIsLazy(t *testing.T) {
	g := newGen(t, newTable(t,
		iface("A", nil, pure("b", "B*")),
		iface("B", nil, pure("a", "A&")),
	))
	s, err := g.Generate(context.Background(), "A")
	require.NoError(t, err)

	a := NewDouble(s)
	b := a.Nested("b")
	require.NotNil(t, b)
	a2 := b.Nested("a")
	require.NotNil(t, a2)
	assert.NotSame(t, a, a2)
	assert.Equal(t, 0, a2.Counter("b").Count())
}

func TestDouble_InvokeErrors(t *testing.T) {
	d := ifs1Double(t)

	_, err := d.Invoke("missing")
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = d.Invoke("ifs2_func1_int_char", 1)
	assert.ErrorIs(t, err, ErrArity)
	assert.Equal(t, 0, d.Counter("ifs2_func1_int_char").Count())

	assert.Nil(t, d.Counter("missing"))
	assert.Nil(t, d.Callback("missing"))
	assert.Nil(t, d.Static("missing"))
}

func TestDouble_ConcurrentInvoke(t *testing.T) {
	d := ifs1Double(t)
	const calls = 100

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Invoke("run")
		}()
	}
	wg.Wait()
	assert.Equal(t, calls, d.Counter("run").Count())
}

func TestZeroValue(t *testing.T) {
	g := newGen(t, newTable(t, iface("Z", nil,
		pure("flag", "bool"),
		pure("ratio", "double"),
		pure("ptr", "char*"),
	)))
	s, err := g.Generate(context.Background(), "Z")
	require.NoError(t, err)
	d := NewDouble(s)

	assert.Equal(t, false, invoke(t, d, "flag"))
	assert.Equal(t, float64(0), invoke(t, d, "ratio"))
	assert.Nil(t, invoke(t, d, "ptr"))
}

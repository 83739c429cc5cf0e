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
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/cppgen/services/cppgen/decl"
)

// ErrUnknownMethod is returned by Invoke for an ID the stub does not have.
var ErrUnknownMethod = errors.New("unknown stub method")

// ErrArity is returned by Invoke when the argument count does not match.
var ErrArity = errors.New("wrong number of arguments")

// Callback overrides exactly one method of a double.
type Callback interface {
	Call(args ...any) any
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(args ...any) any

// Call invokes f.
func (f CallbackFunc) Call(args ...any) any {
	return f(args...)
}

// Accessor is any per-method state handle accepted by Reset.
type Accessor interface {
	reset()
}

// Reset restores one accessor to its default-constructed state. Sibling
// accessors of the same method and other methods are untouched. The nil
// accessors returned for unknown IDs and void methods are ignored.
func Reset(a Accessor) {
	if a != nil {
		a.reset()
	}
}

// CounterState records how often a method was called and with what.
type CounterState struct {
	mu     *sync.Mutex
	count  int
	params []any
}

// Count returns the number of calls since construction or the last reset.
func (c *CounterState) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Params returns a copy of the most recent call's arguments, or nil.
func (c *CounterState) Params() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.params == nil {
		return nil
	}
	out := make([]any, len(c.params))
	copy(out, c.params)
	return out
}

// Param returns argument i of the most recent call, or nil.
func (c *CounterState) Param(i int) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.params) {
		return nil
	}
	return c.params[i]
}

func (c *CounterState) reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
	c.params = nil
}

// CallbackSlot holds the optional override of one method.
type CallbackSlot struct {
	mu *sync.Mutex
	cb Callback
}

// Set installs cb. A nil cb clears the slot.
func (s *CallbackSlot) Set(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// Get returns the installed callback, or nil.
func (s *CallbackSlot) Get() Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

func (s *CallbackSlot) reset() {
	if s == nil {
		return
	}
	s.Set(nil)
}

// StaticReturn is the settable return value of a non-void method.
type StaticReturn struct {
	mu    *sync.Mutex
	value any
	set   bool
	zero  any
}

// Set stores the value returned when no callback is installed.
func (s *StaticReturn) Set(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.set = true
}

// Value returns the stored value, or the zero value of the return type
// when nothing was stored.
func (s *StaticReturn) Value() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return s.value
	}
	return s.zero
}

// IsSet reports whether a value was stored since the last reset.
func (s *StaticReturn) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

func (s *StaticReturn) reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = nil
	s.set = false
}

type methodState struct {
	mu       sync.Mutex
	method   *Method
	counter  CounterState
	callback CallbackSlot
	static   *StaticReturn
	nested   *Double
}

// Double is an executable instance of a Stub.
//
// Description:
//
//	Every instance owns its state; there are no process-wide singletons.
//	Invoke follows the generated override exactly: count, store the
//	arguments, delegate to the callback if one is set, otherwise return the
//	static value, otherwise (for interface-returning methods) the nested
//	double, otherwise the zero value.
//
// Thread Safety: Safe for concurrent use. Callbacks run without locks held.
type Double struct {
	stub    *Stub
	methods map[string]*methodState
}

// NewDouble creates a double with every counter at zero and no callbacks.
func NewDouble(s *Stub) *Double {
	d := &Double{stub: s, methods: make(map[string]*methodState, len(s.Methods))}
	for _, m := range s.Methods {
		st := &methodState{method: m}
		st.counter.mu = &st.mu
		st.callback.mu = &st.mu
		if !m.Void() {
			st.static = &StaticReturn{mu: &st.mu, zero: zeroValue(m.Source.Return)}
		}
		d.methods[m.ID] = st
	}
	return d
}

// Stub returns the description this double executes.
func (d *Double) Stub() *Stub {
	return d.stub
}

// Invoke calls the method with the given ID.
//
// Outputs:
//
//	any - The callback result, the static value, the nested *Double, or
//	      the zero value. Always nil for void methods.
//	error - ErrUnknownMethod or ErrArity. The counter is not touched then.
func (d *Double) Invoke(id string, args ...any) (any, error) {
	st, ok := d.methods[id]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", d.stub.Name, id, ErrUnknownMethod)
	}
	if want := len(st.method.Source.Params); len(args) != want {
		return nil, fmt.Errorf("%s.%s: got %d, want %d: %w", d.stub.Name, id, len(args), want, ErrArity)
	}

	st.mu.Lock()
	st.counter.count++
	st.counter.params = append([]any(nil), args...)
	cb := st.callback.cb
	var static any
	staticSet := false
	if st.static != nil {
		static, staticSet = st.static.value, st.static.set
	}
	st.mu.Unlock()

	if cb != nil {
		res := cb.Call(args...)
		if st.method.Void() {
			return nil, nil
		}
		return res, nil
	}
	if st.method.Void() {
		return nil, nil
	}
	if staticSet {
		return static, nil
	}
	if st.method.Nested != nil {
		return d.nestedOf(st), nil
	}
	return st.static.Value(), nil
}

// Counter returns the call-counter accessor of a method, or nil.
func (d *Double) Counter(id string) *CounterState {
	if st, ok := d.methods[id]; ok {
		return &st.counter
	}
	return nil
}

// Callback returns the callback-slot accessor of a method, or nil.
func (d *Double) Callback(id string) *CallbackSlot {
	if st, ok := d.methods[id]; ok {
		return &st.callback
	}
	return nil
}

// Static returns the static-return accessor of a non-void method, or nil.
func (d *Double) Static(id string) *StaticReturn {
	if st, ok := d.methods[id]; ok {
		return st.static
	}
	return nil
}

// Nested returns the double owned for an interface-returning method,
// creating it on first use. It is nil for other methods.
func (d *Double) Nested(id string) *Double {
	st, ok := d.methods[id]
	if !ok || st.method.Nested == nil {
		return nil
	}
	return d.nestedOf(st)
}

func (d *Double) nestedOf(st *methodState) *Double {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.nested == nil {
		st.nested = NewDouble(st.method.Nested)
	}
	return st.nested
}

// zeroValue is the default-constructed value of a return type.
func zeroValue(t decl.SemanticType) any {
	if t.Kind != decl.TypePrimitive {
		return nil
	}
	switch t.Name {
	case "bool":
		return false
	case "float", "double", "long double":
		return float64(0)
	default:
		return 0
	}
}

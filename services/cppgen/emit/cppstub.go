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
	"fmt"
	"strings"

	"github.com/AleutianAI/cppgen/services/cppgen/decl"
	"github.com/AleutianAI/cppgen/services/cppgen/stub"
)

// StubOptions configures StubSource.
type StubOptions struct {
	// Includes are emitted as #include "..." lines, in order.
	Includes []string

	// Guard is the include guard macro. Empty omits the guard.
	Guard string
}

// StubSource renders the stubs as one C++98 source.
//
// Description:
//
//	For each stub S of interface I (identifier X) the output contains:
//	  - namespace StubCallbackX: per method, an interface I<id> with the
//	    single pure virtual <id>(...) and a slot struct <id> {callback}
//	  - namespace StubCounterX: per method, <id> {call_counter, param_*}
//	  - namespace StubStaticX: per non-void method, <id> {stub_return}
//	  - namespace StubInternalX: StubInit(T*) overloaded for every slot
//	    struct, restoring it to its default state
//	  - class S deriving from I, overriding every instrumented method, with
//	    StubCounter_<id>(), StubCallback_<id>(), StubStatic_<id>() and, for
//	    interface-returning methods, StubNested_<id>() accessors
//	  - plain overrides of pure virtual special members (operator=), which
//	    are neither counted nor controllable
//
//	Every definition is inline and placed after all classes, so the output
//	is usable both as a header and as a translation unit. Nested stubs are
//	created on first use and owned by the enclosing stub.
//
// Inputs:
//
//	stubs - Stubs in emission order, typically Generator.Stubs().
//	opts - Includes and guard.
//
// Outputs:
//
//	[]byte - The source. Identical inputs give identical bytes.
//	error - Non-nil for a nil stub or two stubs with the same name.
func StubSource(stubs []*stub.Stub, opts StubOptions) ([]byte, error) {
	seen := make(map[string]bool, len(stubs))
	for i, s := range stubs {
		if s == nil {
			return nil, fmt.Errorf("stub at index %d is nil", i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate stub name %q", s.Name)
		}
		seen[s.Name] = true
	}

	w := &codeWriter{}
	w.line("// Generated by cppgen. Do not edit.")
	if opts.Guard != "" {
		w.line("#ifndef %s", opts.Guard)
		w.line("#define %s", opts.Guard)
	}
	if len(opts.Includes) > 0 {
		w.blank()
		for _, inc := range opts.Includes {
			w.line("#include \"%s\"", inc)
		}
	}

	if len(stubs) > 0 {
		w.blank()
		for _, s := range stubs {
			w.line("class %s;", s.Name)
		}
	}

	for _, s := range stubs {
		w.blank()
		writeStubNamespaces(w, s)
		w.blank()
		writeStubClass(w, s)
	}
	for _, s := range stubs {
		w.blank()
		writeStubDefinitions(w, s)
	}

	if opts.Guard != "" {
		w.blank()
		w.line("#endif // %s", opts.Guard)
	}
	return w.bytes(), nil
}

// param is one parameter as rendered in generated code.
type param struct {
	typ     decl.SemanticType
	name    string
	storage decl.SemanticType
	field   string
	byRef   bool
}

func params(m *stub.Method) []param {
	out := make([]param, 0, len(m.Source.Params))
	for i, p := range m.Source.Params {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("x%d", i)
		}
		pp := param{typ: p.Type, name: name, field: "param_" + name}
		if p.Type.Kind == decl.TypeReference {
			pp.storage = decl.PointerTo(p.Type.Elem())
			pp.byRef = true
		} else {
			pp.storage = p.Type.Unqualified()
		}
		out = append(out, pp)
	}
	return out
}

func paramList(ps []param) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, declarator(p.typ, p.name))
	}
	return strings.Join(parts, ", ")
}

func argList(ps []param) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, moveIfRvalue(p.typ, p.name))
	}
	return strings.Join(parts, ", ")
}

// moveIfRvalue casts a named lvalue so it binds to a T&& parameter or
// return type.
func moveIfRvalue(t decl.SemanticType, expr string) string {
	if t.Kind == decl.TypeReference && t.Rvalue {
		return "static_cast<" + t.String() + ">(" + expr + ")"
	}
	return expr
}

// declarator renders "const int& y" or "char* x1".
func declarator(t decl.SemanticType, name string) string {
	return t.String() + " " + name
}

// returnStorage is the type held by the static-return slot.
func returnStorage(m *stub.Method) decl.SemanticType {
	r := m.Source.Return
	switch {
	case m.Nested != nil:
		return decl.PointerTo(r.Elem())
	case r.Kind == decl.TypeReference:
		return r.Elem().Unqualified()
	default:
		return r.Unqualified()
	}
}

// zeroExpr is the default-constructed value of a storage type.
func zeroExpr(t decl.SemanticType) string {
	switch {
	case t.IsIndirect():
		return "0"
	case t.Kind == decl.TypePrimitive && t.Name == "bool":
		return "false"
	case t.Kind == decl.TypePrimitive:
		return "0"
	default:
		return t.Unqualified().String() + "()"
	}
}

func constSuffix(m *stub.Method) string {
	if m.Source.Const {
		return " const"
	}
	return ""
}

func writeStubNamespaces(w *codeWriter, s *stub.Stub) {
	x := s.Ident

	w.line("namespace StubCallback%s {", x)
	for _, m := range s.Methods {
		ps := params(m)
		w.line("class I%s {", m.ID)
		w.line("public:")
		w.in()
		w.line("virtual ~I%s() {}", m.ID)
		w.line("virtual %s %s(%s) = 0;", m.Source.Return, m.ID, paramList(ps))
		w.out()
		w.line("};")
		w.line("struct %s {", m.ID)
		w.in()
		w.line("I%s* callback;", m.ID)
		w.out()
		w.line("};")
	}
	w.line("} // namespace StubCallback%s", x)
	w.blank()

	w.line("namespace StubCounter%s {", x)
	for _, m := range s.Methods {
		w.line("struct %s {", m.ID)
		w.in()
		w.line("unsigned call_counter;")
		for _, p := range params(m) {
			w.line("%s;", declarator(p.storage, p.field))
		}
		w.out()
		w.line("};")
	}
	w.line("} // namespace StubCounter%s", x)
	w.blank()

	w.line("namespace StubStatic%s {", x)
	for _, m := range s.Methods {
		if m.Void() {
			continue
		}
		w.line("struct %s {", m.ID)
		w.in()
		w.line("%s;", declarator(returnStorage(m), "stub_return"))
		w.out()
		w.line("};")
	}
	w.line("} // namespace StubStatic%s", x)
	w.blank()

	w.line("namespace StubInternal%s {", x)
	for _, m := range s.Methods {
		w.line("void StubInit(StubCallback%s::%s* value);", x, m.ID)
		w.line("void StubInit(StubCounter%s::%s* value);", x, m.ID)
		if !m.Void() {
			w.line("void StubInit(StubStatic%s::%s* value);", x, m.ID)
		}
	}
	w.line("} // namespace StubInternal%s", x)
}

func writeStubClass(w *codeWriter, s *stub.Stub) {
	x := s.Ident
	w.line("class %s : public %s {", s.Name, s.Interface)
	w.line("public:")
	w.in()
	w.line("%s();", s.Name)
	w.line("virtual ~%s();", s.Name)

	for _, m := range s.Methods {
		w.blank()
		w.line("virtual %s %s(%s)%s;", m.Source.Return, m.Source.Name, paramList(params(m)), constSuffix(m))
		w.line("StubCallback%s::%s& StubCallback_%s();", x, m.ID, m.ID)
		w.line("StubCounter%s::%s& StubCounter_%s();", x, m.ID, m.ID)
		if !m.Void() {
			w.line("StubStatic%s::%s& StubStatic_%s();", x, m.ID, m.ID)
		}
		if m.Nested != nil {
			w.line("%s& StubNested_%s();", m.Nested.Name, m.ID)
		}
	}
	if len(s.Special) > 0 {
		w.blank()
		for _, m := range s.Special {
			w.line("virtual %s %s(%s)%s;", m.Source.Return, m.Source.Name, paramList(params(m)), constSuffix(m))
		}
	}
	w.out()

	w.blank()
	w.line("private:")
	w.in()
	w.line("%s(const %s&);", s.Name, s.Name)
	w.line("%s& operator=(const %s&);", s.Name, s.Name)
	w.blank()
	for _, m := range s.Methods {
		w.line("mutable StubCallback%s::%s stub_callback_%s;", x, m.ID, m.ID)
		w.line("mutable StubCounter%s::%s stub_counter_%s;", x, m.ID, m.ID)
		if !m.Void() {
			w.line("mutable StubStatic%s::%s stub_static_%s;", x, m.ID, m.ID)
		}
		if m.Nested != nil {
			w.line("mutable %s* stub_nested_%s;", m.Nested.Name, m.ID)
			w.line("%s& stub_nested_get_%s() const;", m.Nested.Name, m.ID)
		}
	}
	w.out()
	w.line("};")
}

func writeStubDefinitions(w *codeWriter, s *stub.Stub) {
	x := s.Ident

	w.line("namespace StubInternal%s {", x)
	for _, m := range s.Methods {
		w.line("inline void StubInit(StubCallback%s::%s* value) {", x, m.ID)
		w.in()
		w.line("value->callback = 0;")
		w.out()
		w.line("}")

		w.line("inline void StubInit(StubCounter%s::%s* value) {", x, m.ID)
		w.in()
		w.line("value->call_counter = 0;")
		for _, p := range params(m) {
			w.line("value->%s = %s;", p.field, zeroExpr(p.storage))
		}
		w.out()
		w.line("}")

		if !m.Void() {
			w.line("inline void StubInit(StubStatic%s::%s* value) {", x, m.ID)
			w.in()
			w.line("value->stub_return = %s;", zeroExpr(returnStorage(m)))
			w.out()
			w.line("}")
		}
	}
	w.line("} // namespace StubInternal%s", x)
	w.blank()

	var nestedInit []string
	for _, m := range s.Methods {
		if m.Nested != nil {
			nestedInit = append(nestedInit, fmt.Sprintf("stub_nested_%s(0)", m.ID))
		}
	}
	if len(nestedInit) > 0 {
		w.line("inline %s::%s() : %s {", s.Name, s.Name, strings.Join(nestedInit, ", "))
	} else {
		w.line("inline %s::%s() {", s.Name, s.Name)
	}
	w.in()
	for _, m := range s.Methods {
		w.line("StubInternal%s::StubInit(&stub_callback_%s);", x, m.ID)
		w.line("StubInternal%s::StubInit(&stub_counter_%s);", x, m.ID)
		if !m.Void() {
			w.line("StubInternal%s::StubInit(&stub_static_%s);", x, m.ID)
		}
	}
	w.out()
	w.line("}")
	w.blank()

	w.line("inline %s::~%s() {", s.Name, s.Name)
	w.in()
	for _, m := range s.Methods {
		if m.Nested != nil {
			w.line("delete stub_nested_%s;", m.ID)
		}
	}
	w.out()
	w.line("}")

	for _, m := range s.Methods {
		w.blank()
		writeOverride(w, s, m)
		writeAccessors(w, s, m)
	}
	for _, m := range s.Special {
		w.blank()
		writeSpecialOverride(w, s, m)
	}
}

// writeSpecialOverride defines an uninstrumented override. Parameters are
// left unnamed since the body ignores them.
func writeSpecialOverride(w *codeWriter, s *stub.Stub, m *stub.Method) {
	types := make([]string, 0, len(m.Source.Params))
	for _, p := range m.Source.Params {
		types = append(types, p.Type.String())
	}
	w.line("inline %s %s::%s(%s)%s {", m.Source.Return, s.Name, m.Source.Name, strings.Join(types, ", "), constSuffix(m))
	w.in()
	r := m.Source.Return
	switch {
	case m.Void():
	case r.Kind == decl.TypeReference:
		w.line("return %s;", moveIfRvalue(r, "*this"))
	case r.Kind == decl.TypePointer:
		w.line("return this;")
	default:
		w.line("return %s;", zeroExpr(r.Unqualified()))
	}
	w.out()
	w.line("}")
}

func writeOverride(w *codeWriter, s *stub.Stub, m *stub.Method) {
	ps := params(m)
	w.line("inline %s %s::%s(%s)%s {", m.Source.Return, s.Name, m.Source.Name, paramList(ps), constSuffix(m))
	w.in()
	w.line("stub_counter_%s.call_counter++;", m.ID)
	for _, p := range ps {
		if p.byRef {
			w.line("stub_counter_%s.%s = &%s;", m.ID, p.field, p.name)
		} else {
			w.line("stub_counter_%s.%s = %s;", m.ID, p.field, p.name)
		}
	}

	w.line("if (stub_callback_%s.callback != 0) {", m.ID)
	w.in()
	if m.Void() {
		w.line("stub_callback_%s.callback->%s(%s);", m.ID, m.ID, argList(ps))
		w.line("return;")
	} else {
		w.line("return stub_callback_%s.callback->%s(%s);", m.ID, m.ID, argList(ps))
	}
	w.out()
	w.line("}")

	r := m.Source.Return
	switch {
	case m.Void():
	case m.Nested != nil && r.Kind == decl.TypeReference:
		w.line("if (stub_static_%s.stub_return != 0) {", m.ID)
		w.in()
		w.line("return %s;", moveIfRvalue(r, "*stub_static_"+m.ID+".stub_return"))
		w.out()
		w.line("}")
		w.line("return %s;", moveIfRvalue(r, "stub_nested_get_"+m.ID+"()"))
	case m.Nested != nil:
		w.line("if (stub_static_%s.stub_return != 0) {", m.ID)
		w.in()
		w.line("return stub_static_%s.stub_return;", m.ID)
		w.out()
		w.line("}")
		w.line("return &stub_nested_get_%s();", m.ID)
	default:
		w.line("return %s;", moveIfRvalue(r, "stub_static_"+m.ID+".stub_return"))
	}
	w.out()
	w.line("}")
}

func writeAccessors(w *codeWriter, s *stub.Stub, m *stub.Method) {
	x := s.Ident
	w.blank()
	w.line("inline StubCallback%s::%s& %s::StubCallback_%s() {", x, m.ID, s.Name, m.ID)
	w.in()
	w.line("return stub_callback_%s;", m.ID)
	w.out()
	w.line("}")

	w.line("inline StubCounter%s::%s& %s::StubCounter_%s() {", x, m.ID, s.Name, m.ID)
	w.in()
	w.line("return stub_counter_%s;", m.ID)
	w.out()
	w.line("}")

	if !m.Void() {
		w.line("inline StubStatic%s::%s& %s::StubStatic_%s() {", x, m.ID, s.Name, m.ID)
		w.in()
		w.line("return stub_static_%s;", m.ID)
		w.out()
		w.line("}")
	}

	if m.Nested != nil {
		w.line("inline %s& %s::StubNested_%s() {", m.Nested.Name, s.Name, m.ID)
		w.in()
		w.line("return stub_nested_get_%s();", m.ID)
		w.out()
		w.line("}")

		w.line("inline %s& %s::stub_nested_get_%s() const {", m.Nested.Name, s.Name, m.ID)
		w.in()
		w.line("if (stub_nested_%s == 0) {", m.ID)
		w.in()
		w.line("stub_nested_%s = new %s;", m.ID, m.Nested.Name)
		w.out()
		w.line("}")
		w.line("return *stub_nested_%s;", m.ID)
		w.out()
		w.line("}")
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package frontend

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/cppgen/services/cppgen/decl"
)

// callScope is the name environment of one function body.
type callScope struct {
	owner string
	scope []string

	// vars maps a field, parameter or local to the class it names.
	vars map[string]string
}

func (cs *callScope) bind(name string, t decl.SemanticType) {
	if name == "" {
		return
	}
	if target, ok := t.Target(); ok {
		cs.vars[name] = target
	}
}

var statementConstructs = map[string]decl.Construct{
	"for_statement":    decl.ConstructFor,
	"for_range_loop":   decl.ConstructFor,
	"while_statement":  decl.ConstructWhile,
	"do_statement":     decl.ConstructDo,
	"switch_statement": decl.ConstructSwitch,
	"catch_clause":     decl.ConstructCatch,
}

// calls collects the call expressions under n in source order.
func (w *walker) calls(n *sitter.Node, enclosing []decl.Construct, cs *callScope) []decl.CallExpr {
	var out []decl.CallExpr
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, w.callsIn(n.NamedChild(i), enclosing, cs)...)
	}
	return out
}

func (w *walker) callsIn(n *sitter.Node, enclosing []decl.Construct, cs *callScope) []decl.CallExpr {
	if n == nil {
		return nil
	}
	if c, ok := statementConstructs[n.Type()]; ok {
		return w.calls(n, within(enclosing, c), cs)
	}

	switch n.Type() {
	case "call_expression":
		var out []decl.CallExpr
		fn := n.ChildByFieldName("function")
		if fn != nil && fn.Type() == "field_expression" {
			out = append(out, w.callsIn(fn.ChildByFieldName("argument"), enclosing, cs)...)
		}
		call := decl.CallExpr{
			Callee:    w.callee(fn, cs),
			Enclosing: within(enclosing),
		}
		if args := n.ChildByFieldName("arguments"); args != nil {
			call.Args = w.calls(args, enclosing, cs)
		}
		if w.types[call.Callee] {
			return append(out, call.Args...)
		}
		return append(out, call)

	case "if_statement":
		var out []decl.CallExpr
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if !c.IsNamed() {
				continue
			}
			switch n.FieldNameForChild(i) {
			case "condition", "consequence":
				out = append(out, w.callsIn(c, within(enclosing, decl.ConstructIf), cs)...)
			case "alternative":
				out = append(out, w.callsIn(c, within(enclosing, decl.ConstructElse), cs)...)
			default:
				out = append(out, w.callsIn(c, enclosing, cs)...)
			}
		}
		return out

	case "try_statement":
		var out []decl.CallExpr
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if !c.IsNamed() {
				continue
			}
			if n.FieldNameForChild(i) == "body" {
				out = append(out, w.callsIn(c, within(enclosing, decl.ConstructTry), cs)...)
				continue
			}
			out = append(out, w.callsIn(c, enclosing, cs)...)
		}
		return out

	case "declaration":
		w.bindLocals(n, cs)
		return w.calls(n, enclosing, cs)

	case "lambda_expression":
		return nil
	}
	return w.calls(n, enclosing, cs)
}

// bindLocals records the class of each local declared by n.
func (w *walker) bindLocals(n *sitter.Node, cs *callScope) {
	base := w.baseSpelling(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) != "declarator" {
			continue
		}
		inner, suffix := w.unwrap(n.Child(i))
		if inner == nil {
			continue
		}
		t := w.qualifyType(decl.ParseType(base+suffix), cs.scope)
		cs.bind(compactName(w.text(inner)), t)
	}
}

// callee resolves the called name. Member calls through a known field,
// parameter or local resolve to "Class::member"; unqualified names resolve
// against the caller's class and namespaces.
func (w *walker) callee(fn *sitter.Node, cs *callScope) string {
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		name := w.text(fn)
		if cs.owner != "" && w.callables[cs.owner+"::"+name] {
			return cs.owner + "::" + name
		}
		return w.lookupCallee(name, cs.scope)
	case "qualified_identifier":
		return w.lookupCallee(compactName(w.text(fn)), cs.scope)
	case "template_function":
		return w.callee(fn.ChildByFieldName("name"), cs)
	case "field_expression":
		field := compactName(w.text(fn.ChildByFieldName("field")))
		arg := fn.ChildByFieldName("argument")
		switch {
		case arg == nil:
		case arg.Type() == "this" && cs.owner != "":
			return cs.owner + "::" + field
		case arg.Type() == "identifier":
			if class, ok := cs.vars[w.text(arg)]; ok {
				return class + "::" + field
			}
		}
		return field
	}
	return compactName(w.text(fn))
}

// within returns a copy of enclosing with extra constructs appended.
func within(enclosing []decl.Construct, extra ...decl.Construct) []decl.Construct {
	if len(enclosing)+len(extra) == 0 {
		return nil
	}
	out := make([]decl.Construct, 0, len(enclosing)+len(extra))
	out = append(out, enclosing...)
	return append(out, extra...)
}

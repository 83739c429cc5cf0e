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
	"strings"

	"github.com/AleutianAI/cppgen/services/cppgen/classify"
	"github.com/AleutianAI/cppgen/services/cppgen/decl"
)

// Declarations renders every declaration of the table as C++ in a legal
// definition order.
//
// Description:
//
//	A forward declaration is emitted first for every resolved Referenced
//	target, so pointer and reference members compile regardless of order.
//	Classes then follow res.Order, which places each Owned target before its
//	owner. Members are grouped methods first, then fields, with an access
//	specifier written whenever visibility changes. Forward-only
//	declarations render as "class X;".
//
// Inputs:
//
//	table - The merged symbol table.
//	res - The classification of table. Must come from the same table.
//
// Outputs:
//
//	[]byte - Deterministic C++ source.
func Declarations(table *decl.SymbolTable, res *classify.Result) []byte {
	w := &codeWriter{}
	w.line("// Generated by cppgen. Do not edit.")

	forwards := referencedTargets(table, res)
	if len(forwards) > 0 {
		w.blank()
		for _, name := range forwards {
			ns, short := splitQualified(name)
			writeInNamespaces(w, ns, func() {
				w.line("class %s;", short)
			})
		}
	}

	for _, id := range res.Order {
		d := table.Get(id)
		if d == nil {
			continue
		}
		w.blank()
		ns, short := splitQualified(d.Name)
		writeInNamespaces(w, ns, func() {
			writeDeclaration(w, d, short)
		})
	}
	return w.bytes()
}

// referencedTargets lists resolved Referenced targets in first-use order.
func referencedTargets(table *decl.SymbolTable, res *classify.Result) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range res.Edges {
		if e.Class != classify.Referenced || !e.Resolved || seen[e.Target] {
			continue
		}
		if _, ok := table.Lookup(e.Target); !ok {
			continue
		}
		seen[e.Target] = true
		out = append(out, e.Target)
	}
	return out
}

func writeInNamespaces(w *codeWriter, ns []string, body func()) {
	w.openNamespaces(ns)
	body()
	w.closeNamespaces(ns)
}

func writeDeclaration(w *codeWriter, d *decl.Declaration, short string) {
	if !d.FullyDefined {
		w.line("class %s;", short)
		return
	}

	if len(d.Bases) > 0 {
		bases := make([]string, 0, len(d.Bases))
		for _, b := range d.Bases {
			bases = append(bases, "public "+b)
		}
		w.line("class %s : %s {", short, strings.Join(bases, ", "))
	} else {
		w.line("class %s {", short)
	}

	current := decl.Private
	access := func(v decl.Visibility) {
		if v != current {
			w.line("%s:", v)
			current = v
		}
	}

	for _, m := range d.Methods {
		access(m.Visibility)
		w.in()
		w.line("%s;", methodDeclarator(m))
		w.out()
	}
	for _, f := range d.Fields {
		access(f.Visibility)
		w.in()
		w.line("%s;", declarator(f.Type, f.Name))
		w.out()
	}
	w.line("};")
}

func methodDeclarator(m *decl.Method) string {
	var sb strings.Builder
	if m.Virtual || m.PureVirtual {
		sb.WriteString("virtual ")
	}
	switch m.Kind {
	case decl.MethodConstructor, decl.MethodCopyConstructor, decl.MethodDestructor:
	default:
		sb.WriteString(m.Return.String())
		sb.WriteByte(' ')
	}
	sb.WriteString(m.Name)
	sb.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if p.Name != "" {
			sb.WriteString(declarator(p.Type, p.Name))
		} else {
			sb.WriteString(p.Type.String())
		}
	}
	sb.WriteByte(')')
	if m.Const {
		sb.WriteString(" const")
	}
	if m.PureVirtual {
		sb.WriteString(" = 0")
	}
	return sb.String()
}

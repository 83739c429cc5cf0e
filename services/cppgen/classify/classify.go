// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classify decides, for every type usage in the merged declaration
// model, whether the usage needs the full definition of its target (Owned)
// or only a forward declaration (Referenced), and derives a definition order
// from the Owned subgraph.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/cppgen/services/cppgen/decl"
	"github.com/AleutianAI/cppgen/services/cppgen/diag"
)

// Classification tags a ClassificationEdge.
type Classification int

const (
	// Owned means the target is embedded by value and must be fully
	// defined before the user.
	Owned Classification = iota

	// Referenced means the target is reached through a pointer or reference
	// and a forward declaration suffices.
	Referenced
)

// String returns "owned" or "referenced".
func (c Classification) String() string {
	if c == Owned {
		return "owned"
	}
	return "referenced"
}

// Site says where a type usage appears.
type Site int

const (
	SiteField Site = iota
	SiteBase
	SiteParam
	SiteReturn
)

// String returns the lowercase site name.
func (s Site) String() string {
	switch s {
	case SiteField:
		return "field"
	case SiteBase:
		return "base"
	case SiteParam:
		return "param"
	case SiteReturn:
		return "return"
	default:
		return "unknown"
	}
}

// Edge relates one type usage to the declaration it names.
//
// Description:
//
//	From is the declaration containing the usage. Member is the field name,
//	the method signature for params/returns, or the base name for bases.
//	Index is the parameter position for SiteParam and -1 otherwise.
//	Resolved is false when Target names nothing in the symbol table.
type Edge struct {
	From     string
	Site     Site
	Member   string
	Index    int
	Target   string
	Class    Classification
	Resolved bool
}

// Orders reports whether the edge constrains definition order. Only Owned
// fields and bases do; a by-value parameter or return type in a declaration
// does not require the complete type.
func (e Edge) Orders() bool {
	return e.Class == Owned && (e.Site == SiteField || e.Site == SiteBase)
}

// Stats summarizes a classification run.
type Stats struct {
	Owned      int
	Referenced int
	Primitive  int
	Unresolved int
}

// Result is the immutable output of Classify.
//
// Thread Safety: Safe for concurrent reads.
type Result struct {
	// Edges in declaration order, then member order.
	Edges []Edge

	// Order is every declaration ID such that each Owned target appears
	// before the declarations that own it.
	Order []decl.DeclID

	// Diagnostics holds the recoverable UnresolvedReference findings.
	Diagnostics diag.List

	Stats Stats

	table  *decl.SymbolTable
	fields map[fieldKey]Classification
	byFrom map[string][]int
}

type fieldKey struct {
	decl  string
	field string
}

// FieldClass returns the classification of a field whose type names a
// declaration. ok is false for primitive-typed or unknown fields.
func (r *Result) FieldClass(declName, fieldName string) (Classification, bool) {
	c, ok := r.fields[fieldKey{declName, fieldName}]
	return c, ok
}

// EdgesFrom returns the edges whose usage lives in the named declaration.
func (r *Result) EdgesFrom(declName string) []Edge {
	idx := r.byFrom[declName]
	out := make([]Edge, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.Edges[i])
	}
	return out
}

// OrderNames returns Order as qualified names.
func (r *Result) OrderNames() []string {
	out := make([]string, 0, len(r.Order))
	for _, id := range r.Order {
		out = append(out, r.table.Get(id).Name)
	}
	return out
}

// Classify builds every classification edge and the definition order.
//
// Description:
//
//	Walks each declaration's bases, fields, and method parameters and
//	returns. A NamedType used by value is Owned when its target is fully
//	defined; a pointer or reference to a NamedType is Referenced. Primitive
//	usages produce no edge. A by-value use of a forward-only or unknown
//	type cannot be honored and is downgraded to Referenced with an
//	UnresolvedReference diagnostic, as is any usage naming an unknown type.
//
//	The order is a topological sort of the Owned field/base subgraph with
//	ties broken by declaration ID, so it is stable for a fixed input.
//	Referenced edges never participate and may form cycles freely.
//
// Inputs:
//
//	ctx - Checked between declarations.
//	table - The merged symbol table. Must not be nil.
//
// Outputs:
//
//	*Result - Edges, order and diagnostics.
//	error - *diag.Error of KindInvalidOwnershipCycle if the Owned subgraph
//	        has a cycle, or ctx.Err().
func Classify(ctx context.Context, table *decl.SymbolTable) (*Result, error) {
	if table == nil {
		return nil, fmt.Errorf("symbol table must not be nil")
	}

	r := &Result{
		table:  table,
		fields: make(map[fieldKey]Classification),
		byFrom: make(map[string][]int),
	}
	r.Diagnostics.Extend(table.ResolveBases())

	for _, d := range table.Declarations() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.classifyDecl(d)
	}

	order, cycle := TopoSort(table.Len(), r.ownedDeps)
	if cycle != nil {
		names := make([]string, 0, len(cycle))
		for _, id := range cycle {
			names = append(names, table.Get(decl.DeclID(id)).Name)
		}
		return nil, diag.Errorf(diag.KindInvalidOwnershipCycle, names[0],
			"declarations embed each other by value: %s", strings.Join(names, " -> "))
	}
	r.Order = make([]decl.DeclID, 0, len(order))
	for _, id := range order {
		r.Order = append(r.Order, decl.DeclID(id))
	}
	return r, nil
}

func (r *Result) classifyDecl(d *decl.Declaration) {
	for _, b := range d.Bases {
		target, ok := r.table.Lookup(b)
		e := Edge{From: d.Name, Site: SiteBase, Member: b, Index: -1, Target: b, Resolved: ok}
		// An unresolved base was already reported by ResolveBases.
		if ok && target.FullyDefined {
			e.Class = Owned
		} else {
			e.Class = Referenced
			if ok {
				r.Diagnostics.Addf(diag.KindUnresolvedReference, d.Name,
					"base class %q is only forward-declared", b)
			}
		}
		r.add(e)
	}

	for _, f := range d.Fields {
		if e, ok := r.edgeFor(d, f.Type, SiteField, f.Name, -1); ok {
			r.fields[fieldKey{d.Name, f.Name}] = e.Class
			r.add(e)
		}
	}

	for _, m := range d.Methods {
		sig := m.Signature()
		for i, p := range m.Params {
			if e, ok := r.edgeFor(d, p.Type, SiteParam, sig, i); ok {
				r.add(e)
			}
		}
		if e, ok := r.edgeFor(d, m.Return, SiteReturn, sig, -1); ok {
			r.add(e)
		}
	}
}

// edgeFor classifies one type usage. ok is false for primitives.
func (r *Result) edgeFor(d *decl.Declaration, t decl.SemanticType, site Site, member string, index int) (Edge, bool) {
	name, named := t.Target()
	if !named {
		r.Stats.Primitive++
		return Edge{}, false
	}
	target, found := r.table.Lookup(name)
	e := Edge{From: d.Name, Site: site, Member: member, Index: index, Target: name, Resolved: found}

	switch {
	case !found:
		e.Class = Referenced
		r.Diagnostics.Addf(diag.KindUnresolvedReference, d.Name,
			"%s %s names undeclared type %q", site, member, name)
	case t.IsIndirect():
		e.Class = Referenced
	case !target.FullyDefined:
		e.Class = Referenced
		r.Diagnostics.Addf(diag.KindUnresolvedReference, d.Name,
			"%s %s uses %q by value but it is only forward-declared", site, member, name)
	default:
		e.Class = Owned
	}
	return e, true
}

func (r *Result) add(e Edge) {
	r.byFrom[e.From] = append(r.byFrom[e.From], len(r.Edges))
	r.Edges = append(r.Edges, e)
	switch {
	case !e.Resolved:
		r.Stats.Unresolved++
		r.Stats.Referenced++
	case e.Class == Owned:
		r.Stats.Owned++
	default:
		r.Stats.Referenced++
	}
}

// ownedDeps returns the IDs that declaration id must follow.
func (r *Result) ownedDeps(id int) []int {
	d := r.table.Get(decl.DeclID(id))
	var deps []int
	for _, i := range r.byFrom[d.Name] {
		e := r.Edges[i]
		if !e.Orders() {
			continue
		}
		if tid, ok := r.table.ID(e.Target); ok {
			deps = append(deps, int(tid))
		}
	}
	return deps
}

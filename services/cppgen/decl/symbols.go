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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/AleutianAI/cppgen/services/cppgen/diag"
)

// DeclID is the stable arena index of a Declaration in a SymbolTable.
type DeclID int

// SymbolTable is the global, merged view over every input unit.
//
// Description:
//
//	Declarations live in an arena indexed by DeclID in first-seen order.
//	Later stages refer to declarations by ID or name and never embed one
//	declaration inside another, so reference cycles are harmless.
//
//	Merge rules, applied per qualified name:
//	  - a forward-only declaration never replaces anything
//	  - a full definition replaces a forward-only one in place (same ID)
//	  - two full definitions with identical content collapse silently
//	  - two differing full definitions: first wins, DuplicateDefinition
//
// Thread Safety:
//
//	Not safe for concurrent mutation. The pipeline merges every unit on a
//	single goroutine and only reads the table afterwards, which is safe
//	from any number of goroutines.
type SymbolTable struct {
	decls        []*Declaration
	byName       map[string]DeclID
	fingerprints []string

	functions []*Function
	fnByName  map[string]int // keyed by Function.Key
	fnPrints  []string
	unitsSeen []string
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byName:   make(map[string]DeclID),
		fnByName: make(map[string]int),
	}
}

// Merge adds every declaration and function body of the given units.
//
// Description:
//
//	Units are merged in argument order, so "first seen" is deterministic for
//	a fixed input order. Recoverable findings are returned; Merge never
//	fails.
//
// Inputs:
//
//	units - Validated units. Nil entries are skipped.
//
// Outputs:
//
//	diag.List - DuplicateDefinition findings.
func (t *SymbolTable) Merge(units ...*Unit) diag.List {
	var diags diag.List
	for _, u := range units {
		if u == nil {
			continue
		}
		t.unitsSeen = append(t.unitsSeen, u.Name)
		for _, d := range u.Declarations {
			if d == nil {
				continue
			}
			t.mergeDecl(d, &diags)
		}
		for _, fn := range u.Functions {
			if fn == nil {
				continue
			}
			t.mergeFunction(fn, u.Name, &diags)
		}
	}
	return diags
}

func (t *SymbolTable) mergeDecl(d *Declaration, diags *diag.List) {
	id, exists := t.byName[d.Name]
	if !exists {
		t.byName[d.Name] = DeclID(len(t.decls))
		t.decls = append(t.decls, d)
		t.fingerprints = append(t.fingerprints, fingerprintDecl(d))
		return
	}

	existing := t.decls[id]
	switch {
	case !d.FullyDefined:
		return
	case !existing.FullyDefined:
		t.decls[id] = d
		t.fingerprints[id] = fingerprintDecl(d)
	case t.fingerprints[id] == fingerprintDecl(d):
		return
	default:
		diags.Addf(diag.KindDuplicateDefinition, d.Name,
			"definition in unit %q differs from the one in unit %q; keeping the first",
			d.Unit, existing.Unit)
	}
}

func (t *SymbolTable) mergeFunction(fn *Function, unit string, diags *diag.List) {
	key := fn.Key()
	idx, exists := t.fnByName[key]
	if !exists {
		t.fnByName[key] = len(t.functions)
		t.functions = append(t.functions, fn)
		t.fnPrints = append(t.fnPrints, fingerprintFunction(fn))
		return
	}
	fp := fingerprintFunction(fn)
	if t.fnPrints[idx] == fp {
		return
	}
	if len(t.functions[idx].Calls) == 0 && len(fn.Calls) > 0 {
		t.functions[idx] = fn
		t.fnPrints[idx] = fp
		return
	}
	if len(fn.Calls) == 0 {
		return
	}
	diags.Addf(diag.KindDuplicateDefinition, fn.Name,
		"body of %s in unit %q differs from an earlier body; keeping the first", key, unit)
}

// Len returns the number of declarations.
func (t *SymbolTable) Len() int {
	return len(t.decls)
}

// Get returns the declaration with the given ID.
func (t *SymbolTable) Get(id DeclID) *Declaration {
	if id < 0 || int(id) >= len(t.decls) {
		return nil
	}
	return t.decls[id]
}

// ID returns the arena ID for a qualified name.
func (t *SymbolTable) ID(name string) (DeclID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// Lookup returns the declaration for a qualified name.
func (t *SymbolTable) Lookup(name string) (*Declaration, bool) {
	id, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.decls[id], true
}

// IsInterface reports whether name resolves to an interface declaration.
func (t *SymbolTable) IsInterface(name string) bool {
	d, ok := t.Lookup(name)
	return ok && d.IsInterface()
}

// Declarations returns every declaration in ID order.
func (t *SymbolTable) Declarations() []*Declaration {
	out := make([]*Declaration, len(t.decls))
	copy(out, t.decls)
	return out
}

// Interfaces returns the interface declarations in ID order.
func (t *SymbolTable) Interfaces() []*Declaration {
	var out []*Declaration
	for _, d := range t.decls {
		if d.IsInterface() {
			out = append(out, d)
		}
	}
	return out
}

// Functions returns every merged function body in first-seen order.
func (t *SymbolTable) Functions() []*Function {
	out := make([]*Function, len(t.functions))
	copy(out, t.functions)
	return out
}

// Units returns the names of merged units in merge order.
func (t *SymbolTable) Units() []string {
	out := make([]string, len(t.unitsSeen))
	copy(out, t.unitsSeen)
	return out
}

// Bases resolves the base list of d. Unknown names are skipped; use
// ResolveBases to report them.
func (t *SymbolTable) Bases(d *Declaration) []*Declaration {
	out := make([]*Declaration, 0, len(d.Bases))
	for _, name := range d.Bases {
		if b, ok := t.Lookup(name); ok {
			out = append(out, b)
		}
	}
	return out
}

// ResolveBases reports every base reference that names no declaration.
//
// Description:
//
//	The reference stays in Declaration.Bases as an opaque weak link;
//	downstream stages treat it as Referenced.
func (t *SymbolTable) ResolveBases() diag.List {
	var diags diag.List
	for _, d := range t.decls {
		for _, b := range d.Bases {
			if _, ok := t.byName[b]; !ok {
				diags.Addf(diag.KindUnresolvedReference, d.Name, "base class %q is not declared", b)
			}
		}
	}
	return diags
}

// fingerprintDecl hashes everything but the originating unit, so the same
// header included from two units collapses to one definition.
func fingerprintDecl(d *Declaration) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s|%t|%s\n", d.Name, d.Kind, d.FullyDefined, strings.Join(d.Bases, ","))
	for _, m := range d.Methods {
		fmt.Fprintf(&sb, "m %s %s %t %t %s %s\n", m.Signature(), m.Return, m.PureVirtual, m.Virtual, m.Visibility, m.Kind)
		writeCalls(&sb, m.Body)
	}
	for _, f := range d.Fields {
		fmt.Fprintf(&sb, "f %s %s %s\n", f.Name, f.Type, f.Visibility)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func fingerprintFunction(fn *Function) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s\n", fn.Name, fn.Return)
	for _, p := range fn.Params {
		fmt.Fprintf(&sb, "p %s\n", p.Type)
	}
	writeCalls(&sb, fn.Calls)
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func writeCalls(sb *strings.Builder, calls []CallExpr) {
	for _, c := range calls {
		fmt.Fprintf(sb, "c %s %v (", c.Callee, c.Enclosing)
		writeCalls(sb, c.Args)
		sb.WriteString(")\n")
	}
}

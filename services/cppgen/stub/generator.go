// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stub derives instrumented test doubles from interface declarations.
//
// A Generator produces one Stub per interface, memoized by qualified name and
// recursing into interfaces reached through pointer or reference return
// types. A Double executes the semantics a generated stub has at runtime:
// per-method call counters with stored parameters, an optional callback
// override, a static return value, and lazily created nested doubles.
package stub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/AleutianAI/cppgen/services/cppgen/decl"
	"github.com/AleutianAI/cppgen/services/cppgen/diag"
)

// DefaultPrefix is prepended to the interface name to form the stub name.
const DefaultPrefix = "Stub"

// ErrNotInterface is returned when Generate is asked to stub a class.
var ErrNotInterface = errors.New("declaration is not an interface")

// Method is one instrumented method of a Stub.
type Method struct {
	// ID is the stable identifier: name plus parameter type words,
	// e.g. "ifs2_func1_int_char". Unique within the stub.
	ID string

	// Source is the declaring method.
	Source *decl.Method

	// Interface is the interface that declares Source.
	Interface string

	// Nested is the stub of the interface returned through a pointer or
	// reference, or nil.
	Nested *Stub
}

// Void reports whether the method returns nothing.
func (m *Method) Void() bool {
	return m.Source.Return.IsVoid()
}

// Stub is the generated description of one interface double.
//
// Thread Safety: Immutable once Generate returns it.
type Stub struct {
	// Interface is the qualified name of the stubbed interface.
	Interface string

	// Name is the generated class name, e.g. "StubIfs1".
	Name string

	// Ident is the identifier-safe interface name used in generated
	// namespaces, e.g. "Ifs1" or "ns_Ifs1".
	Ident string

	// Methods are the instrumented methods: the interface's own first, then
	// each base interface's in base-list order.
	Methods []*Method

	// Special are pure virtual special members (operator=) of the interface
	// and its bases. They are overridden without instrumentation so the
	// stub is concrete.
	Special []*Method
}

// Method returns the method with the given ID.
func (s *Stub) Method(id string) (*Method, bool) {
	for _, m := range s.Methods {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// NestedStubs returns the distinct nested stubs in first-use order.
func (s *Stub) NestedStubs() []*Stub {
	var out []*Stub
	seen := make(map[*Stub]bool)
	for _, m := range s.Methods {
		if m.Nested != nil && !seen[m.Nested] {
			seen[m.Nested] = true
			out = append(out, m.Nested)
		}
	}
	return out
}

// Options configures a Generator.
type Options struct {
	// Prefix is prepended to interface names. Default: "Stub".
	Prefix string

	// Filter selects the interfaces GenerateAll stubs. Interfaces reached as
	// nested return types are always stubbed. Nil selects every interface.
	Filter func(name string) bool

	Logger *slog.Logger
}

// Option is a functional option for configuring a Generator.
type Option func(*Options)

// WithPrefix sets the stub name prefix.
func WithPrefix(prefix string) Option {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

// WithFilter sets the GenerateAll interface filter.
func WithFilter(fn func(name string) bool) Option {
	return func(o *Options) {
		o.Filter = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Generator produces memoized stubs over a merged symbol table.
//
// Description:
//
//	Each interface is stubbed exactly once no matter how many paths reach
//	it. Generation inserts the stub into the memo before resolving nested
//	return types, so mutually recursive interfaces terminate.
//
// Thread Safety:
//
//	Safe for concurrent use. A single mutex guards the memo and the whole
//	generation of a stub and its nested stubs, which makes regeneration
//	impossible rather than merely idempotent.
type Generator struct {
	table   *decl.SymbolTable
	options Options

	mu    sync.Mutex
	memo  map[string]*Stub
	order []*Stub
}

// NewGenerator creates a Generator reading from table.
//
// Inputs:
//
//	table - The merged symbol table. Must not be nil and must not be
//	        mutated afterwards.
//	opts - Functional options.
//
// Outputs:
//
//	*Generator - The generator.
//	error - Non-nil if table is nil.
func NewGenerator(table *decl.SymbolTable, opts ...Option) (*Generator, error) {
	if table == nil {
		return nil, fmt.Errorf("symbol table must not be nil")
	}
	options := Options{Prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Generator{
		table:   table,
		options: options,
		memo:    make(map[string]*Stub),
	}, nil
}

// Generate returns the stub for the named interface, generating it and
// every interface it returns by pointer or reference on first request.
//
// Outputs:
//
//	*Stub - The memoized stub. Repeated calls return the same pointer.
//	error - *diag.Error of KindUnresolvedReference for an unknown name,
//	        ErrNotInterface for a class, or ctx.Err().
func (g *Generator) Generate(ctx context.Context, name string) (*Stub, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := g.table.Lookup(name)
	if !ok {
		return nil, diag.Errorf(diag.KindUnresolvedReference, name, "no declaration to stub")
	}
	if !d.IsInterface() {
		return nil, fmt.Errorf("stubbing %s: %w", name, ErrNotInterface)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generateLocked(d), nil
}

// GenerateAll stubs every interface accepted by the filter, in symbol
// table order, and returns all stubs generated so far including nested ones.
func (g *Generator) GenerateAll(ctx context.Context) ([]*Stub, error) {
	for _, d := range g.table.Interfaces() {
		if g.options.Filter != nil && !g.options.Filter(d.Name) {
			continue
		}
		if _, err := g.Generate(ctx, d.Name); err != nil {
			return nil, err
		}
	}
	return g.Stubs(), nil
}

// Stubs returns every generated stub in generation order.
func (g *Generator) Stubs() []*Stub {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Stub, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of generated stubs.
func (g *Generator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

// generateLocked must be called with g.mu held.
func (g *Generator) generateLocked(d *decl.Declaration) *Stub {
	if s, ok := g.memo[d.Name]; ok {
		return s
	}

	ident := Ident(d.Name)
	s := &Stub{Interface: d.Name, Name: g.options.Prefix + ident, Ident: ident}
	g.memo[d.Name] = s
	g.order = append(g.order, s)

	s.Methods, s.Special = g.flatten(d)
	for _, m := range s.Methods {
		if target, ok := g.nestedInterface(m.Source.Return); ok {
			m.Nested = g.generateLocked(target)
		}
	}

	g.options.Logger.Debug("generated stub",
		slog.String("interface", d.Name),
		slog.String("stub", s.Name),
		slog.Int("methods", len(s.Methods)),
	)
	return s
}

// flatten collects the instrumentable methods of d and its base interfaces,
// and separately their pure virtual special members. A (declaring
// interface, method ID) pair is visited once, so diamond bases contribute
// their methods once; a signature redeclared in a derived interface keeps
// the derived declaration.
func (g *Generator) flatten(root *decl.Declaration) ([]*Method, []*Method) {
	var out, special []*Method
	visited := make(map[string]bool)
	signatures := make(map[string]bool)
	ids := make(map[string]int)
	specialSigs := make(map[string]bool)
	specialIDs := make(map[string]int)

	var walk func(d *decl.Declaration)
	walk = func(d *decl.Declaration) {
		if visited[d.Name] {
			return
		}
		visited[d.Name] = true

		for _, m := range d.InstrumentableMethods() {
			sig := m.Signature()
			if signatures[sig] {
				continue
			}
			signatures[sig] = true
			out = append(out, &Method{ID: uniqueID(MethodID(m), ids), Source: m, Interface: d.Name})
		}
		for _, m := range d.Methods {
			if !m.PureVirtual || m.Kind != decl.MethodAssign || specialSigs[m.Signature()] {
				continue
			}
			specialSigs[m.Signature()] = true
			special = append(special, &Method{ID: uniqueID(MethodID(m), specialIDs), Source: m, Interface: d.Name})
		}
		for _, base := range g.table.Bases(d) {
			if base.IsInterface() {
				walk(base)
			}
		}
	}
	walk(root)
	return out, special
}

// nestedInterface reports the interface behind a T* or T& return type.
func (g *Generator) nestedInterface(t decl.SemanticType) (*decl.Declaration, bool) {
	if !t.IsIndirect() {
		return nil, false
	}
	inner := t.Elem()
	if inner.Kind != decl.TypeNamed {
		return nil, false
	}
	d, ok := g.table.Lookup(inner.Name)
	if !ok || !d.IsInterface() {
		return nil, false
	}
	return d, true
}

// MethodID derives the identifier of m: its name followed by the words of
// each parameter type, joined with underscores. "ifs2_func1(int, char)"
// becomes "ifs2_func1_int_char".
func MethodID(m *decl.Method) string {
	parts := []string{Ident(m.Name)}
	for _, p := range m.Params {
		parts = append(parts, p.Type.Words()...)
	}
	return strings.Join(parts, "_")
}

// uniqueID appends a numeric suffix when id is already taken, which happens
// for overloads differing only in const-ness.
func uniqueID(id string, taken map[string]int) string {
	n := taken[id]
	taken[id] = n + 1
	if n == 0 {
		return id
	}
	return fmt.Sprintf("%s_%d", id, n+1)
}

// Ident turns a qualified name into an identifier fragment.
func Ident(name string) string {
	name = strings.ReplaceAll(name, "::", "_")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/cppgen/services/cppgen/decl"
)

// pendingBody is a function body whose calls are extracted once every name
// in the unit is known.
type pendingBody struct {
	node   *sitter.Node
	owner  string
	method *decl.Method
	fn     *decl.Function
}

// outOfLine is a qualified function definition whose owner is resolved
// after the walk.
type outOfLine struct {
	fn    *decl.Function
	owner string
	short string
	ns    []string
}

// walker turns one syntax tree into a decl.Unit.
type walker struct {
	src  []byte
	unit *decl.Unit

	classes map[string]*decl.Declaration

	// types holds class, typedef and alias names; callables holds
	// functions and "Class::method" names. Type spellings resolve against
	// types only, so a constructor never shadows its class.
	types     map[string]bool
	callables map[string]bool

	scopes   map[*decl.Declaration][]string
	fnScopes map[*decl.Function][]string
	methods  []outOfLine
	pending  []pendingBody
}

func newWalker(src []byte, name string) *walker {
	return &walker{
		src:      src,
		unit:     &decl.Unit{Name: name},
		classes:   make(map[string]*decl.Declaration),
		types:     make(map[string]bool),
		callables: make(map[string]bool),
		scopes:    make(map[*decl.Declaration][]string),
		fnScopes:  make(map[*decl.Function][]string),
	}
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

// scope walks a translation unit, namespace body or preprocessor block.
func (w *walker) scope(n *sitter.Node, ns []string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "namespace_definition":
			inner := ns
			if name := c.ChildByFieldName("name"); name != nil {
				inner = appendScope(ns, splitQualified(compactName(w.text(name)))...)
			}
			if body := c.ChildByFieldName("body"); body != nil {
				w.scope(body, inner)
			}
		case "class_specifier", "struct_specifier":
			w.class(c, ns)
		case "declaration":
			if t := c.ChildByFieldName("type"); t != nil && isClassNode(t) {
				w.class(t, ns)
			}
		case "function_definition":
			w.function(c, ns)
		case "type_definition":
			w.typedef(c, ns)
		case "alias_declaration":
			if name := c.ChildByFieldName("name"); name != nil {
				w.types[qualify(ns, w.text(name))] = true
			}
		case "linkage_specification", "declaration_list",
			"preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif", "preproc_elifdef":
			w.scope(c, ns)
		}
	}
}

// typedef records the names a typedef introduces. Calls through them are
// conversions, not function calls.
func (w *walker) typedef(n *sitter.Node, ns []string) {
	if t := n.ChildByFieldName("type"); t != nil && isClassNode(t) && t.ChildByFieldName("body") != nil {
		w.class(t, ns)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) != "declarator" {
			continue
		}
		if inner, _ := w.unwrap(n.Child(i)); inner != nil {
			w.types[qualify(ns, compactName(w.text(inner)))] = true
		}
	}
}

func isClassNode(n *sitter.Node) bool {
	t := n.Type()
	return t == "class_specifier" || t == "struct_specifier"
}

// class records a class or struct specifier and its members.
func (w *walker) class(n *sitter.Node, ns []string) *decl.Declaration {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := qualify(ns, compactName(w.text(nameNode)))
	body := n.ChildByFieldName("body")
	d := &decl.Declaration{
		Name:         name,
		FullyDefined: body != nil,
		Unit:         w.unit.Name,
	}
	w.unit.Declarations = append(w.unit.Declarations, d)
	w.scopes[d] = splitQualified(name)
	w.types[name] = true
	if body == nil {
		return d
	}
	w.classes[name] = d

	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "base_class_clause" {
			continue
		}
		for j := 0; j < int(c.NamedChildCount()); j++ {
			b := c.NamedChild(j)
			switch b.Type() {
			case "type_identifier", "qualified_identifier", "template_type":
				d.Bases = append(d.Bases, compactName(w.text(b)))
			}
		}
	}

	vis := decl.Private
	if n.Type() == "struct_specifier" {
		vis = decl.Public
	}
	w.members(body, d, vis)
	return d
}

func (w *walker) members(body *sitter.Node, d *decl.Declaration, vis decl.Visibility) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		switch c.Type() {
		case "access_specifier":
			vis = decl.ParseVisibility(strings.TrimSuffix(w.text(c), ":"))
		case "field_declaration", "declaration":
			w.member(c, d, vis)
		case "function_definition":
			w.inlineMethod(c, d, vis)
		case "class_specifier", "struct_specifier":
			w.class(c, w.scopes[d])
		case "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif":
			w.members(c, d, vis)
		}
	}
}

// member handles a field or member function declaration without a body.
func (w *walker) member(n *sitter.Node, d *decl.Declaration, vis decl.Visibility) {
	if t := n.ChildByFieldName("type"); t != nil && isClassNode(t) && t.ChildByFieldName("body") != nil {
		w.class(t, w.scopes[d])
	}
	base := w.baseSpelling(n)
	static := w.hasSpecifier(n, "static")
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) != "declarator" {
			continue
		}
		inner, suffix := w.unwrap(n.Child(i))
		if inner == nil {
			continue
		}
		if inner.Type() == "function_declarator" {
			m := w.method(inner, base+suffix, vis)
			m.Virtual = m.Virtual || w.hasSpecifier(n, "virtual")
			if w.isPure(n) {
				m.PureVirtual = true
				m.Virtual = true
			}
			d.Methods = append(d.Methods, m)
			continue
		}
		if static {
			continue
		}
		d.Fields = append(d.Fields, &decl.Field{
			Name:       compactName(w.text(inner)),
			Type:       decl.ParseType(base + suffix),
			Visibility: vis,
		})
	}
}

func (w *walker) inlineMethod(n *sitter.Node, d *decl.Declaration, vis decl.Visibility) {
	inner, suffix := w.unwrap(n.ChildByFieldName("declarator"))
	if inner == nil || inner.Type() != "function_declarator" {
		return
	}
	m := w.method(inner, w.baseSpelling(n)+suffix, vis)
	m.Virtual = m.Virtual || w.hasSpecifier(n, "virtual")
	body := n.ChildByFieldName("body")
	switch {
	case body != nil:
		m.HasBody = true
		w.pending = append(w.pending, pendingBody{node: body, owner: d.Name, method: m})
	case w.isPure(n):
		// "virtual void f() = 0;" parses as a bodiless function_definition.
		m.PureVirtual = true
		m.Virtual = true
	}
	d.Methods = append(d.Methods, m)
}

// method builds a Method from a function_declarator.
func (w *walker) method(fd *sitter.Node, ret string, vis decl.Visibility) *decl.Method {
	m := &decl.Method{
		Name:       compactName(w.text(fd.ChildByFieldName("declarator"))),
		Params:     w.params(fd.ChildByFieldName("parameters")),
		Return:     decl.ParseType(ret),
		Visibility: vis,
	}
	for i := 0; i < int(fd.NamedChildCount()); i++ {
		c := fd.NamedChild(i)
		switch c.Type() {
		case "type_qualifier":
			if w.text(c) == "const" {
				m.Const = true
			}
		case "virtual_specifier":
			m.Virtual = true
		}
	}
	return m
}

// function records a namespace-scope function definition, either a free
// function or an out-of-line member definition such as Methods::func.
func (w *walker) function(n *sitter.Node, ns []string) {
	inner, suffix := w.unwrap(n.ChildByFieldName("declarator"))
	if inner == nil || inner.Type() != "function_declarator" {
		return
	}
	raw := compactName(w.text(inner.ChildByFieldName("declarator")))
	if raw == "" {
		return
	}
	fn := &decl.Function{
		Params: w.params(inner.ChildByFieldName("parameters")),
		Return: decl.ParseType(w.baseSpelling(n) + suffix),
	}
	if i := strings.LastIndex(raw, "::"); i > 0 {
		w.methods = append(w.methods, outOfLine{fn: fn, owner: raw[:i], short: raw[i+2:], ns: ns})
		fn.Name = qualify(ns, raw)
	} else {
		fn.Name = qualify(ns, raw)
		w.fnScopes[fn] = ns
	}
	w.unit.Functions = append(w.unit.Functions, fn)
	if body := n.ChildByFieldName("body"); body != nil {
		w.pending = append(w.pending, pendingBody{node: body, fn: fn})
	}
}

func (w *walker) params(list *sitter.Node) []decl.Param {
	if list == nil {
		return nil
	}
	var out []decl.Param
	for i := 0; i < int(list.NamedChildCount()); i++ {
		pd := list.NamedChild(i)
		switch pd.Type() {
		case "parameter_declaration", "optional_parameter_declaration":
		default:
			continue
		}
		base := w.baseSpelling(pd)
		var name, suffix string
		if dn := pd.ChildByFieldName("declarator"); dn != nil {
			var inner *sitter.Node
			inner, suffix = w.unwrap(dn)
			name = compactName(w.text(inner))
		}
		if base == "void" && suffix == "" && name == "" {
			continue
		}
		out = append(out, decl.Param{Name: name, Type: decl.ParseType(base + suffix)})
	}
	return out
}

// baseSpelling returns the declaration's type with its qualifiers, e.g.
// "const std::string", before any declarator adds '*' or '&'.
func (w *walker) baseSpelling(n *sitter.Node) string {
	var parts []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch {
		case n.FieldNameForChild(i) == "type":
			if isClassNode(c) || c.Type() == "enum_specifier" {
				parts = append(parts, compactName(w.text(c.ChildByFieldName("name"))))
				continue
			}
			parts = append(parts, compactName(w.text(c)))
		case c.Type() == "type_qualifier":
			parts = append(parts, w.text(c))
		}
	}
	return strings.Join(parts, " ")
}

// unwrap strips pointer, reference and init declarators and returns the
// innermost declarator with the type suffix they add, e.g. "* const".
// The node is nil for abstract declarators.
func (w *walker) unwrap(n *sitter.Node) (*sitter.Node, string) {
	var suffix strings.Builder
	for n != nil {
		switch n.Type() {
		case "pointer_declarator", "abstract_pointer_declarator":
			suffix.WriteString("*")
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if c := n.NamedChild(i); c.Type() == "type_qualifier" && w.text(c) == "const" {
					suffix.WriteString(" const")
				}
			}
			n = n.ChildByFieldName("declarator")
		case "reference_declarator", "abstract_reference_declarator":
			if strings.HasPrefix(w.text(n), "&&") {
				suffix.WriteString("&&")
			} else {
				suffix.WriteString("&")
			}
			n = lastNamedChild(n)
		case "parenthesized_declarator", "abstract_parenthesized_declarator":
			n = lastNamedChild(n)
		case "init_declarator", "array_declarator", "abstract_array_declarator":
			n = n.ChildByFieldName("declarator")
		default:
			return n, suffix.String()
		}
	}
	return nil, suffix.String()
}

func lastNamedChild(n *sitter.Node) *sitter.Node {
	count := int(n.NamedChildCount())
	if count == 0 {
		return nil
	}
	return n.NamedChild(count - 1)
}

// hasSpecifier reports whether n carries a keyword such as "virtual" or
// "static" among its direct children.
func (w *walker) hasSpecifier(n *sitter.Node, keyword string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == "declarator" || n.FieldNameForChild(i) == "body" {
			continue
		}
		c := n.Child(i)
		switch c.Type() {
		case keyword, keyword + "_function_specifier":
			return true
		case "storage_class_specifier":
			if w.text(c) == keyword {
				return true
			}
		}
	}
	return false
}

// isPure reports a "= 0" pure specifier.
func (w *walker) isPure(n *sitter.Node) bool {
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		c := n.Child(i)
		switch {
		case c.Type() == "pure_virtual_clause":
			return true
		case n.FieldNameForChild(i) == "default_value" && w.text(c) == "0":
			return true
		case c.Type() == "=" && i+1 < count && w.text(n.Child(i+1)) == "0":
			return true
		}
	}
	return false
}

// resolve qualifies names written relative to a namespace or class, then
// finalizes method kinds and declaration kinds.
func (w *walker) resolve() {
	for _, ool := range w.methods {
		owner := w.lookupType(ool.owner, ool.ns)
		ool.fn.Owner = owner
		ool.fn.Name = owner + "::" + ool.short
		w.fnScopes[ool.fn] = splitQualified(owner)
	}

	for _, d := range w.unit.Declarations {
		sc := w.scopes[d]
		for i, b := range d.Bases {
			d.Bases[i] = w.lookupType(b, sc[:len(sc)-1])
		}
		for _, f := range d.Fields {
			f.Type = w.qualifyType(f.Type, sc)
		}
		for _, m := range d.Methods {
			w.qualifyParams(m.Params, sc)
			m.Return = w.qualifyType(m.Return, sc)
			w.callables[d.Name+"::"+m.Name] = true
		}
		d.Normalize()
		d.Kind = decl.InferKind(d)
	}
	for _, fn := range w.unit.Functions {
		sc := w.fnScopes[fn]
		w.qualifyParams(fn.Params, sc)
		fn.Return = w.qualifyType(fn.Return, sc)
		w.callables[fn.Name] = true
	}
}

func (w *walker) qualifyParams(params []decl.Param, scope []string) {
	for i := range params {
		params[i].Type = w.qualifyType(params[i].Type, scope)
	}
}

func (w *walker) qualifyType(t decl.SemanticType, scope []string) decl.SemanticType {
	if t.Inner != nil {
		inner := w.qualifyType(*t.Inner, scope)
		t.Inner = &inner
		return t
	}
	if t.Kind == decl.TypeNamed {
		t.Name = w.lookupType(t.Name, scope)
	}
	return t
}

// lookupType finds the innermost type the unit declares for name as seen
// from scope, or returns name unchanged.
func (w *walker) lookupType(name string, scope []string) string {
	if q, ok := lookupIn(w.types, name, scope); ok {
		return q
	}
	return name
}

// lookupCallee resolves a called name: functions and methods first, then
// types, so conversions such as MyInt(2) can be recognized.
func (w *walker) lookupCallee(name string, scope []string) string {
	if q, ok := lookupIn(w.callables, name, scope); ok {
		return q
	}
	return w.lookupType(name, scope)
}

func lookupIn(set map[string]bool, name string, scope []string) (string, bool) {
	if strings.HasPrefix(name, "::") {
		return name[2:], true
	}
	for k := len(scope); k > 0; k-- {
		candidate := strings.Join(scope[:k], "::") + "::" + name
		if set[candidate] {
			return candidate, true
		}
	}
	return name, set[name]
}

// bodies extracts the calls of every recorded function body.
func (w *walker) bodies() {
	for _, p := range w.pending {
		cs := &callScope{vars: make(map[string]string)}
		var params []decl.Param
		switch {
		case p.method != nil:
			cs.owner = p.owner
			cs.scope = splitQualified(p.owner)
			params = p.method.Params
		case p.fn != nil:
			cs.owner = p.fn.Owner
			cs.scope = w.fnScopes[p.fn]
			params = p.fn.Params
		}
		if owner, ok := w.classes[cs.owner]; ok {
			for _, f := range owner.Fields {
				cs.bind(f.Name, f.Type)
			}
		}
		for _, prm := range params {
			cs.bind(prm.Name, prm.Type)
		}

		calls := w.calls(p.node, nil, cs)
		if p.method != nil {
			p.method.Body = calls
		} else {
			p.fn.Calls = calls
		}
	}
}

func appendScope(scope []string, parts ...string) []string {
	out := make([]string, 0, len(scope)+len(parts))
	out = append(out, scope...)
	return append(out, parts...)
}

func qualify(scope []string, name string) string {
	if len(scope) == 0 {
		return name
	}
	return strings.Join(scope, "::") + "::" + name
}

func splitQualified(name string) []string {
	if name == "" {
		return nil
	}
	return strings.Split(name, "::")
}

// compactName collapses whitespace in a name or type spelling, keeping a
// single space only between two identifier characters.
func compactName(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fields[0])
	for _, f := range fields[1:] {
		prev := sb.String()
		if isIdentByte(prev[len(prev)-1]) && isIdentByte(f[0]) {
			sb.WriteByte(' ')
		}
		sb.WriteString(f)
	}
	return sb.String()
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

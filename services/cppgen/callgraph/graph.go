// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package callgraph builds a deduplicated directed graph of direct calls
// between functions and methods from their bodies' call expressions.
package callgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Default graph limits.
const (
	DefaultMaxNodes = 1_000_000
	DefaultMaxEdges = 5_000_000
)

var (
	// ErrGraphFrozen is returned when mutating a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen")

	// ErrMaxNodesExceeded is returned when the node limit is reached.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxEdgesExceeded is returned when the edge limit is reached.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")
)

// NodeKind separates functions whose body was seen from external names.
type NodeKind int

const (
	// NodeExternal is a callee with no body in the input.
	NodeExternal NodeKind = iota

	// NodeFunction is a function or method whose body was analyzed.
	NodeFunction
)

// String returns "external" or "function".
func (k NodeKind) String() string {
	if k == NodeFunction {
		return "function"
	}
	return "external"
}

// Node is one function or method, identified by qualified name.
type Node struct {
	// Index is the first-seen position of the node.
	Index int

	Name string
	Kind NodeKind

	// Owner is the class of a method, or empty.
	Owner string
}

// Edge is one distinct caller to callee relationship.
type Edge struct {
	Caller string
	Callee string
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithMaxNodes sets the node limit.
func WithMaxNodes(n int) GraphOption {
	return func(g *Graph) {
		g.maxNodes = n
	}
}

// WithMaxEdges sets the edge limit.
func WithMaxEdges(n int) GraphOption {
	return func(g *Graph) {
		g.maxEdges = n
	}
}

// Graph is a call graph with set semantics on edges.
//
// Description:
//
//	Nodes and edges keep first-seen order, which is the order every
//	renderer uses. Adding an edge that already exists is a no-op, so the
//	number of call sites never shows up in the structure.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. After Freeze it is read-only and
//	safe for concurrent reads.
type Graph struct {
	nodes   []*Node
	byName  map[string]*Node
	edges   []Edge
	edgeSet map[Edge]struct{}
	out     map[string][]string
	in      map[string][]string

	maxNodes int
	maxEdges int
	frozen   bool

	// BuiltAtMilli is the Unix time in milliseconds when the graph was frozen.
	BuiltAtMilli int64
}

// NewGraph creates an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		byName:   make(map[string]*Node),
		edgeSet:  make(map[Edge]struct{}),
		out:      make(map[string][]string),
		in:       make(map[string][]string),
		maxNodes: DefaultMaxNodes,
		maxEdges: DefaultMaxEdges,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode adds a node or returns the existing one. Adding a NodeFunction
// for an existing external node upgrades it.
func (g *Graph) AddNode(name string, kind NodeKind, owner string) (*Node, error) {
	if g.frozen {
		return nil, ErrGraphFrozen
	}
	if n, ok := g.byName[name]; ok {
		if kind == NodeFunction && n.Kind == NodeExternal {
			n.Kind = NodeFunction
		}
		if n.Owner == "" {
			n.Owner = owner
		}
		return n, nil
	}
	if len(g.nodes) >= g.maxNodes {
		return nil, fmt.Errorf("adding %s: %w", name, ErrMaxNodesExceeded)
	}
	n := &Node{Index: len(g.nodes), Name: name, Kind: kind, Owner: owner}
	g.nodes = append(g.nodes, n)
	g.byName[name] = n
	return n, nil
}

// AddEdge records caller -> callee. Both nodes must exist.
//
// Outputs:
//
//	bool - True when the edge is new.
//	error - ErrGraphFrozen, ErrMaxEdgesExceeded, or an unknown endpoint.
func (g *Graph) AddEdge(caller, callee string) (bool, error) {
	if g.frozen {
		return false, ErrGraphFrozen
	}
	if _, ok := g.byName[caller]; !ok {
		return false, fmt.Errorf("edge %s -> %s: unknown caller", caller, callee)
	}
	if _, ok := g.byName[callee]; !ok {
		return false, fmt.Errorf("edge %s -> %s: unknown callee", caller, callee)
	}
	e := Edge{Caller: caller, Callee: callee}
	if _, ok := g.edgeSet[e]; ok {
		return false, nil
	}
	if len(g.edges) >= g.maxEdges {
		return false, fmt.Errorf("edge %s -> %s: %w", caller, callee, ErrMaxEdgesExceeded)
	}
	g.edgeSet[e] = struct{}{}
	g.edges = append(g.edges, e)
	g.out[caller] = append(g.out[caller], callee)
	g.in[callee] = append(g.in[callee], caller)
	return true, nil
}

// Freeze makes the graph read-only.
func (g *Graph) Freeze() {
	g.frozen = true
}

// IsFrozen reports whether Freeze was called.
func (g *Graph) IsFrozen() bool {
	return g.frozen
}

// Node returns the node with the given name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.byName[name]
	return n, ok
}

// Nodes returns every node in first-seen order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns every edge in first-seen order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// HasEdge reports whether caller -> callee exists.
func (g *Graph) HasEdge(caller, callee string) bool {
	_, ok := g.edgeSet[Edge{Caller: caller, Callee: callee}]
	return ok
}

// Callees returns the direct callees of name in first-seen order.
func (g *Graph) Callees(name string) []string {
	return append([]string(nil), g.out[name]...)
}

// Callers returns the direct callers of name in first-seen order.
func (g *Graph) Callers(name string) []string {
	return append([]string(nil), g.in[name]...)
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Hash returns a sha256 over nodes and edges in first-seen order. Two
// graphs built from the same bodies in the same order hash equal.
func (g *Graph) Hash() string {
	h := sha256.New()
	for _, n := range g.nodes {
		fmt.Fprintf(h, "n|%s|%d|%s\n", n.Name, n.Kind, n.Owner)
	}
	for _, e := range g.edges {
		fmt.Fprintf(h, "e|%s|%s\n", e.Caller, e.Callee)
	}
	return hex.EncodeToString(h.Sum(nil))
}

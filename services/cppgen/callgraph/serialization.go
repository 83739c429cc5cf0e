// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callgraph

import (
	"fmt"
)

// GraphSchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const GraphSchemaVersion = "1.0"

// SerializableGraph is the JSON-serializable representation of a Graph.
//
// Description:
//
//	Nodes and edges keep the graph's first-seen order, the same order the
//	GraphML renderer uses, so the JSON form diffs cleanly across runs.
//
// Thread Safety: SerializableGraph is a value type with no internal state.
type SerializableGraph struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version"`

	// BuiltAtMilli is the Unix timestamp in milliseconds when the graph was frozen.
	BuiltAtMilli int64 `json:"built_at_milli"`

	// GraphHash is the deterministic hash of the graph structure.
	GraphHash string `json:"graph_hash"`

	Nodes []SerializableNode `json:"nodes"`
	Edges []SerializableEdge `json:"edges"`
}

// SerializableNode is the JSON-serializable representation of a Node.
type SerializableNode struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Owner string `json:"owner,omitempty"`
}

// SerializableEdge is the JSON-serializable representation of an Edge.
type SerializableEdge struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

// ToSerializable converts a Graph to its JSON-serializable representation.
//
// Outputs:
//
//	*SerializableGraph - The serializable representation. Never nil.
//
// Thread Safety:
//
//	Safe for concurrent use on frozen graphs.
func (g *Graph) ToSerializable() *SerializableGraph {
	if g == nil {
		return &SerializableGraph{
			SchemaVersion: GraphSchemaVersion,
			Nodes:         []SerializableNode{},
			Edges:         []SerializableEdge{},
		}
	}

	nodes := make([]SerializableNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, SerializableNode{Name: n.Name, Kind: n.Kind.String(), Owner: n.Owner})
	}
	edges := make([]SerializableEdge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, SerializableEdge{Caller: e.Caller, Callee: e.Callee})
	}

	return &SerializableGraph{
		SchemaVersion: GraphSchemaVersion,
		BuiltAtMilli:  g.BuiltAtMilli,
		GraphHash:     g.Hash(),
		Nodes:         nodes,
		Edges:         edges,
	}
}

// FromSerializable reconstructs a Graph from its serializable representation.
//
// Description:
//
//	Replays AddNode and AddEdge in stored order so indexes and first-seen
//	order match the original, then freezes the graph and verifies the hash
//	when one is present.
//
// Inputs:
//
//	sg - The serializable graph to reconstruct. Must not be nil.
//	opts - Optional GraphOption values (e.g., WithMaxNodes).
//
// Outputs:
//
//	*Graph - The reconstructed graph in read-only state.
//	error - Non-nil for a nil input, an unsupported schema, invalid
//	        entries, or a hash mismatch.
func FromSerializable(sg *SerializableGraph, opts ...GraphOption) (*Graph, error) {
	if sg == nil {
		return nil, fmt.Errorf("serializable graph must not be nil")
	}
	if sg.SchemaVersion != GraphSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %q (expected %q)", sg.SchemaVersion, GraphSchemaVersion)
	}

	g := NewGraph(opts...)
	for i, sn := range sg.Nodes {
		if sn.Name == "" {
			return nil, fmt.Errorf("node at index %d has no name", i)
		}
		kind := NodeExternal
		switch sn.Kind {
		case "function":
			kind = NodeFunction
		case "external":
		default:
			return nil, fmt.Errorf("node %s has unknown kind %q", sn.Name, sn.Kind)
		}
		if _, err := g.AddNode(sn.Name, kind, sn.Owner); err != nil {
			return nil, fmt.Errorf("adding node %s: %w", sn.Name, err)
		}
	}
	for i, se := range sg.Edges {
		if _, err := g.AddEdge(se.Caller, se.Callee); err != nil {
			return nil, fmt.Errorf("adding edge %d (%s -> %s): %w", i, se.Caller, se.Callee, err)
		}
	}

	g.Freeze()
	g.BuiltAtMilli = sg.BuiltAtMilli

	if sg.GraphHash != "" && sg.GraphHash != g.Hash() {
		return nil, fmt.Errorf("graph hash mismatch: stored %s, rebuilt %s", sg.GraphHash, g.Hash())
	}
	return g, nil
}

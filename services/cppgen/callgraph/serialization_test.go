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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialization_PreservesOrderAndHash(t *testing.T) {
	g := build(t, functionBodies()).Graph

	data, err := json.Marshal(g.ToSerializable())
	require.NoError(t, err)

	var sg SerializableGraph
	require.NoError(t, json.Unmarshal(data, &sg))
	restored, err := FromSerializable(&sg)
	require.NoError(t, err)

	assert.True(t, restored.IsFrozen())
	assert.Equal(t, g.Hash(), restored.Hash())
	assert.Equal(t, g.Edges(), restored.Edges())
	assert.Equal(t, nodeNames(g), nodeNames(restored))
	assert.Equal(t, g.BuiltAtMilli, restored.BuiltAtMilli)
}

func TestFromSerializable_Errors(t *testing.T) {
	_, err := FromSerializable(nil)
	assert.Error(t, err)

	_, err = FromSerializable(&SerializableGraph{SchemaVersion: "0.1"})
	assert.ErrorContains(t, err, "unsupported schema version")

	_, err = FromSerializable(&SerializableGraph{
		SchemaVersion: GraphSchemaVersion,
		Nodes:         []SerializableNode{{Name: "a", Kind: "function"}},
		Edges:         []SerializableEdge{{Caller: "a", Callee: "missing"}},
	})
	assert.ErrorContains(t, err, "unknown callee")

	_, err = FromSerializable(&SerializableGraph{
		SchemaVersion: GraphSchemaVersion,
		Nodes:         []SerializableNode{{Name: "a", Kind: "lambda"}},
	})
	assert.ErrorContains(t, err, "unknown kind")

	_, err = FromSerializable(&SerializableGraph{
		SchemaVersion: GraphSchemaVersion,
		GraphHash:     "deadbeef",
		Nodes:         []SerializableNode{{Name: "a", Kind: "function"}},
	})
	assert.ErrorContains(t, err, "hash mismatch")
}

func TestToSerializable_NilGraph(t *testing.T) {
	var g *Graph
	sg := g.ToSerializable()
	assert.Equal(t, GraphSchemaVersion, sg.SchemaVersion)
	assert.Empty(t, sg.Nodes)
	assert.Empty(t, sg.Edges)
}

func TestGraph_FrozenRejectsMutation(t *testing.T) {
	g := NewGraph()
	_, err := g.AddNode("a", NodeFunction, "")
	require.NoError(t, err)
	g.Freeze()

	_, err = g.AddNode("b", NodeFunction, "")
	assert.ErrorIs(t, err, ErrGraphFrozen)
	_, err = g.AddEdge("a", "a")
	assert.ErrorIs(t, err, ErrGraphFrozen)
}

func TestGraph_MaxNodes(t *testing.T) {
	g := NewGraph(WithMaxNodes(1))
	_, err := g.AddNode("a", NodeFunction, "")
	require.NoError(t, err)
	_, err = g.AddNode("a", NodeFunction, "")
	require.NoError(t, err, "existing node does not count against the limit")
	_, err = g.AddNode("b", NodeExternal, "")
	assert.ErrorIs(t, err, ErrMaxNodesExceeded)
}

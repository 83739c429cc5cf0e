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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedQuery struct {
	cypher string
	params map[string]any
}

type fakeRunner struct {
	queries []recordedQuery
	failOn  string
}

func (f *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) error {
	f.queries = append(f.queries, recordedQuery{cypher: cypher, params: params})
	if f.failOn != "" && strings.Contains(cypher, f.failOn) {
		return errors.New("neo4j unavailable")
	}
	return nil
}

func TestNeo4jLoader_LoadBatches(t *testing.T) {
	g := build(t, functionBodies()).Graph
	runner := &fakeRunner{}
	loader := NewNeo4jLoaderWithRunner(runner, "demo", 3, nil)

	require.NoError(t, loader.Load(context.Background(), g))

	// 1 index + ceil(7/3) node batches + ceil(7/3) edge batches.
	require.Len(t, runner.queries, 1+3+3)
	assert.Contains(t, runner.queries[0].cypher, "CREATE INDEX")

	var nodeRows, edgeRows int
	for _, q := range runner.queries[1:] {
		rows := q.params["batch"].([]map[string]any)
		assert.LessOrEqual(t, len(rows), 3)
		assert.Equal(t, "demo", q.params["project"])
		if strings.Contains(q.cypher, "[:CALLS]") {
			edgeRows += len(rows)
		} else {
			nodeRows += len(rows)
		}
	}
	assert.Equal(t, g.NodeCount(), nodeRows)
	assert.Equal(t, g.EdgeCount(), edgeRows)

	first := runner.queries[1].params["batch"].([]map[string]any)[0]
	assert.Equal(t, "empty", first["name"])
	assert.Equal(t, "function", first["kind"])
}

func TestNeo4jLoader_Errors(t *testing.T) {
	g := build(t, functionBodies()).Graph

	err := NewNeo4jLoaderWithRunner(&fakeRunner{failOn: "CALLS"}, "demo", 0, nil).Load(context.Background(), g)
	assert.ErrorContains(t, err, "loading edges")

	err = NewNeo4jLoaderWithRunner(&fakeRunner{failOn: "INDEX"}, "demo", 0, nil).Load(context.Background(), g)
	assert.ErrorContains(t, err, "creating indexes")

	assert.Error(t, NewNeo4jLoaderWithRunner(&fakeRunner{}, "demo", 0, nil).Load(context.Background(), nil))
}

func TestNeo4jLoader_Clean(t *testing.T) {
	runner := &fakeRunner{}
	loader := NewNeo4jLoaderWithRunner(runner, "demo", 0, nil)
	require.NoError(t, loader.Clean(context.Background()))
	require.Len(t, runner.queries, 1)
	assert.Contains(t, runner.queries[0].cypher, "DETACH DELETE")
	assert.Equal(t, "demo", runner.queries[0].params["project"])
	assert.NoError(t, loader.Close(context.Background()))
}

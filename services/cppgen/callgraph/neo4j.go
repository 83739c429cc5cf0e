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
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DefaultNeo4jBatchSize is the number of rows sent per UNWIND statement.
const DefaultNeo4jBatchSize = 500

// QueryRunner executes one Cypher statement.
type QueryRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r driverRunner) Run(ctx context.Context, cypher string, params map[string]any) error {
	var cfg []neo4j.ExecuteQueryConfigurationOption
	if r.database != "" {
		cfg = append(cfg, neo4j.ExecuteQueryWithDatabase(r.database))
	}
	_, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params, neo4j.EagerResultTransformer, cfg...)
	return err
}

// Neo4jConfig holds connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	// Project tags every node and edge so several projects share a database.
	Project string `yaml:"project"`

	BatchSize int `yaml:"batch_size"`
}

// Neo4jLoader writes call graphs into Neo4j with batched UNWIND/MERGE
// statements. Nodes become (:CppFunction {name, project}) and edges
// [:CALLS]; MERGE keeps the edge set free of duplicates on reload.
//
// Thread Safety: Safe for concurrent use if the runner is.
type Neo4jLoader struct {
	runner    QueryRunner
	driver    neo4j.DriverWithContext
	project   string
	batchSize int
	logger    *slog.Logger
}

// NewNeo4jLoader connects to Neo4j and returns a ready-to-use loader.
//
// Outputs:
//
//	*Neo4jLoader - The loader. Call Close when done.
//	error - Driver creation or connectivity failure.
func NewNeo4jLoader(ctx context.Context, cfg Neo4jConfig, logger *slog.Logger) (*Neo4jLoader, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j at %s: %w", cfg.URI, err)
	}
	l := NewNeo4jLoaderWithRunner(driverRunner{driver: driver, database: cfg.Database}, cfg.Project, cfg.BatchSize, logger)
	l.driver = driver
	return l, nil
}

// NewNeo4jLoaderWithRunner builds a loader over an arbitrary runner.
func NewNeo4jLoaderWithRunner(runner QueryRunner, project string, batchSize int, logger *slog.Logger) *Neo4jLoader {
	if batchSize <= 0 {
		batchSize = DefaultNeo4jBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Neo4jLoader{runner: runner, project: project, batchSize: batchSize, logger: logger}
}

// Close releases the underlying driver, if any.
func (l *Neo4jLoader) Close(ctx context.Context) error {
	if l.driver == nil {
		return nil
	}
	return l.driver.Close(ctx)
}

// CreateIndexes ensures the lookup index exists.
func (l *Neo4jLoader) CreateIndexes(ctx context.Context) error {
	return l.runner.Run(ctx,
		"CREATE INDEX cpp_func_name IF NOT EXISTS FOR (n:CppFunction) ON (n.project, n.name)", nil)
}

// Clean removes this project's nodes and relationships.
func (l *Neo4jLoader) Clean(ctx context.Context) error {
	l.logger.Info("cleaning call graph", slog.String("project", l.project))
	return l.runner.Run(ctx,
		"MATCH (n:CppFunction {project: $project}) DETACH DELETE n",
		map[string]any{"project": l.project})
}

// Load upserts every node and edge of g.
//
// Description:
//
//	Creates the index, then sends nodes and edges in batches of batchSize
//	rows. Re-running Load on the same graph is idempotent.
func (l *Neo4jLoader) Load(ctx context.Context, g *Graph) error {
	if g == nil {
		return fmt.Errorf("graph must not be nil")
	}
	if err := l.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	nodes := g.Nodes()
	l.logger.Info("loading call graph nodes", slog.Int("count", len(nodes)))
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, map[string]any{
			"name":  n.Name,
			"kind":  n.Kind.String(),
			"owner": n.Owner,
			"order": n.Index,
		})
	}
	if err := l.runBatches(ctx,
		`UNWIND $batch AS row
		 MERGE (n:CppFunction {project: $project, name: row.name})
		 SET n.kind = row.kind, n.owner = row.owner, n.order = row.order`,
		rows); err != nil {
		return fmt.Errorf("loading nodes: %w", err)
	}

	edges := g.Edges()
	l.logger.Info("loading call graph edges", slog.Int("count", len(edges)))
	rows = make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{"caller": e.Caller, "callee": e.Callee})
	}
	if err := l.runBatches(ctx,
		`UNWIND $batch AS row
		 MATCH (caller:CppFunction {project: $project, name: row.caller})
		 MATCH (callee:CppFunction {project: $project, name: row.callee})
		 MERGE (caller)-[:CALLS]->(callee)`,
		rows); err != nil {
		return fmt.Errorf("loading edges: %w", err)
	}
	return nil
}

func (l *Neo4jLoader) runBatches(ctx context.Context, cypher string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += l.batchSize {
		end := start + l.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		params := map[string]any{"batch": rows[start:end], "project": l.project}
		if err := l.runner.Run(ctx, cypher, params); err != nil {
			return err
		}
	}
	return nil
}

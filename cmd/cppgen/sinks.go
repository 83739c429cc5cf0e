// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/cppgen/services/cppgen/artifact"
	"github.com/AleutianAI/cppgen/services/cppgen/callgraph"
	"github.com/AleutianAI/cppgen/services/cppgen/config"
	"github.com/AleutianAI/cppgen/services/cppgen/pipeline"
)

func noClose() error { return nil }

// openSink builds the sink named by output.sink. The returned func
// releases it.
func openSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (artifact.Sink, func() error, error) {
	switch cfg.Output.Sink {
	case config.SinkFile:
		s, err := artifact.NewFileSink(cfg.Output.Dir, cfg.Output.PerRun, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, noClose, nil
	case config.SinkBadger:
		s, err := artifact.OpenStore(cfg.Badger.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.SinkGCS:
		s, err := artifact.NewGCSSink(ctx, cfg.GCS, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.SinkS3:
		s, err := artifact.NewS3Sink(cfg.S3, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, noClose, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink %q", cfg.Output.Sink)
	}
}

// openGraphLoader connects to Neo4j when it is enabled. The loader is nil
// otherwise.
func openGraphLoader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.GraphLoader, func() error, error) {
	if !cfg.Neo4j.Enabled {
		return nil, noClose, nil
	}
	l, err := callgraph.NewNeo4jLoader(ctx, cfg.Neo4j.Neo4jConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := l.CreateIndexes(ctx); err != nil {
		_ = l.Close(ctx)
		return nil, nil, fmt.Errorf("creating neo4j indexes: %w", err)
	}
	return l, func() error { return l.Close(context.Background()) }, nil
}

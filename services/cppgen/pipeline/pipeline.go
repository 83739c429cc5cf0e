// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs ingestion, the merge barrier, classification, stub
// generation, call-graph construction and emission as one traced run.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/cppgen/services/cppgen/artifact"
	"github.com/AleutianAI/cppgen/services/cppgen/callgraph"
	"github.com/AleutianAI/cppgen/services/cppgen/classify"
	"github.com/AleutianAI/cppgen/services/cppgen/config"
	"github.com/AleutianAI/cppgen/services/cppgen/decl"
	"github.com/AleutianAI/cppgen/services/cppgen/diag"
	"github.com/AleutianAI/cppgen/services/cppgen/emit"
	"github.com/AleutianAI/cppgen/services/cppgen/frontend"
	"github.com/AleutianAI/cppgen/services/cppgen/stub"
)

// DiagnosticsFile is the bundle path of the diagnostics report.
const DiagnosticsFile = "diagnostics.json"

// ErrStrict is returned when strict mode rejects recoverable diagnostics.
var ErrStrict = errors.New("unresolved references rejected in strict mode")

// GraphLoader receives the finished call graph, e.g. a Neo4jLoader.
type GraphLoader interface {
	Load(ctx context.Context, g *callgraph.Graph) error
}

// Result is everything one run produced.
type Result struct {
	RunID string

	Table          *decl.SymbolTable
	Classification *classify.Result
	Stubs          []*stub.Stub
	CallGraph      *callgraph.BuildResult
	Bundle         *artifact.Bundle

	// Includes are the headers the stub source includes: stub.includes,
	// or the base names of the header inputs when that is empty.
	Includes []string

	// Diagnostics holds every recoverable finding in phase order: merge,
	// then classification.
	Diagnostics diag.List

	Durations map[string]time.Duration
}

// Options configures a Pipeline.
type Options struct {
	Logger      *slog.Logger
	Sink        artifact.Sink
	GraphLoader GraphLoader

	// NewRunID generates run IDs. Default: uuid.NewString.
	NewRunID func() string

	// Now stamps the bundle. Default: time.Now.
	Now func() time.Time
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithSink delivers each bundle to sink.
func WithSink(sink artifact.Sink) Option {
	return func(o *Options) { o.Sink = sink }
}

// WithGraphLoader hands each call graph to loader.
func WithGraphLoader(loader GraphLoader) Option {
	return func(o *Options) { o.GraphLoader = loader }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(fn func() string) Option {
	return func(o *Options) { o.NewRunID = fn }
}

// WithClock overrides the bundle timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// Pipeline is a configured, reusable runner.
//
// Thread Safety: Safe for concurrent Run calls; each run owns its state.
type Pipeline struct {
	cfg     *config.Config
	options Options
}

// New creates a Pipeline.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	options := Options{
		NewRunID: uuid.NewString,
		Now:      time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, options: options}, nil
}

// Run executes one full run over inputs.
//
// Description:
//
//	Units are loaded and validated in parallel (pipeline.workers at a
//	time); the first fatal error cancels the rest. All units are then
//	merged into one symbol table in input order, which is the barrier
//	before any cross-unit resolution. Classification, stub generation,
//	call-graph construction and emission follow on the merged table.
//	The bundle goes to the configured sink and the graph to the graph
//	loader, if set.
//
// Inputs:
//
//	ctx - Cancels the run.
//	inputs - Sources in a stable order. Output depends only on this order
//	         and the source contents.
//
// Outputs:
//
//	*Result - Artifacts and recoverable diagnostics.
//	error - Fatal diagnostics (*diag.Error), ErrStrict, delivery failures
//	        or ctx.Err(). The Result is nil on error.
func (p *Pipeline) Run(ctx context.Context, inputs []Source) (res *Result, err error) {
	runID := p.options.NewRunID()
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.inputs", len(inputs)),
	)
	defer func() {
		if err != nil {
			failSpan(span, err)
		}
		recordRunMetrics(res, err)
		span.End()
	}()

	logger := p.options.Logger.With(slog.String("run_id", runID))
	res = &Result{
		RunID:     runID,
		Durations: make(map[string]time.Duration),
		Includes:  stubIncludes(p.cfg.Stub.Includes, inputs),
	}
	timed := func(phase string, start time.Time) {
		res.Durations[phase] = time.Since(start)
	}

	// ingest
	start := time.Now()
	units, err := p.ingest(ctx, inputs)
	timed(PhaseIngest, start)
	if err != nil {
		return nil, err
	}

	// merge barrier
	start = time.Now()
	_, mspan, end := startPhase(ctx, PhaseMerge, attribute.Int("units", len(units)))
	res.Table = decl.NewSymbolTable()
	res.Diagnostics.Extend(res.Table.Merge(units...))
	mspan.SetAttributes(attribute.Int("declarations", res.Table.Len()))
	end()
	timed(PhaseMerge, start)
	if err := res.Diagnostics.FirstFatal(); err != nil {
		return nil, err
	}

	// classify
	start = time.Now()
	cctx, cspan, end := startPhase(ctx, PhaseClassify)
	res.Classification, err = classify.Classify(cctx, res.Table)
	if err != nil {
		failSpan(cspan, err)
		end()
		return nil, fmt.Errorf("classifying: %w", err)
	}
	res.Diagnostics.Extend(res.Classification.Diagnostics)
	cspan.SetAttributes(diagAttrs(res.Diagnostics)...)
	end()
	timed(PhaseClassify, start)

	if p.cfg.Pipeline.Strict && res.Diagnostics.Count(diag.KindUnresolvedReference) > 0 {
		return nil, fmt.Errorf("%w: %d found", ErrStrict, res.Diagnostics.Count(diag.KindUnresolvedReference))
	}

	// generate
	start = time.Now()
	gctx, gspan, end := startPhase(ctx, PhaseGenerate)
	gen, err := stub.NewGenerator(res.Table,
		stub.WithPrefix(p.cfg.Stub.Prefix),
		stub.WithFilter(p.cfg.InterfaceFilter()),
		stub.WithLogger(logger),
	)
	if err == nil {
		res.Stubs, err = gen.GenerateAll(gctx)
	}
	if err != nil {
		failSpan(gspan, err)
		end()
		return nil, fmt.Errorf("generating stubs: %w", err)
	}
	gspan.SetAttributes(attribute.Int("stubs", len(res.Stubs)))
	end()
	timed(PhaseGenerate, start)

	// callgraph
	start = time.Now()
	res.CallGraph, err = callgraph.NewBuilder(
		callgraph.WithBuilderMaxNodes(p.cfg.Callgraph.MaxNodes),
		callgraph.WithBuilderMaxEdges(p.cfg.Callgraph.MaxEdges),
		callgraph.WithIgnore(p.cfg.IgnoreCallee()),
		callgraph.WithLogger(logger),
	).Build(ctx, callgraph.BodiesFromTable(res.Table))
	timed(PhaseCallgraph, start)
	if err != nil {
		return nil, fmt.Errorf("building call graph: %w", err)
	}
	if res.CallGraph.Incomplete {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	for _, be := range res.CallGraph.BodyErrors {
		logger.Warn("call graph body skipped", slog.String("caller", be.Caller), slog.Any("error", be.Err))
	}

	// emit
	start = time.Now()
	_, espan, end := startPhase(ctx, PhaseEmit)
	res.Bundle, err = p.emit(res)
	if err != nil {
		failSpan(espan, err)
		end()
		return nil, fmt.Errorf("emitting: %w", err)
	}
	espan.SetAttributes(attribute.Int("files", len(res.Bundle.Files)))
	end()
	timed(PhaseEmit, start)

	// deliver
	start = time.Now()
	if err := p.deliver(ctx, res); err != nil {
		return nil, err
	}
	timed(PhaseDeliver, start)

	logger.Info("run complete",
		slog.Int("units", len(units)),
		slog.Int("declarations", res.Table.Len()),
		slog.Int("stubs", len(res.Stubs)),
		slog.Int("call_edges", res.CallGraph.Graph.EdgeCount()),
		slog.Int("diagnostics", res.Diagnostics.Len()),
	)
	return res, nil
}

// ingest loads and validates every input concurrently. units keeps input
// order so the merge is deterministic.
func (p *Pipeline) ingest(ctx context.Context, inputs []Source) ([]*decl.Unit, error) {
	ctx, span, end := startPhase(ctx, PhaseIngest, attribute.Int("inputs", len(inputs)))
	defer end()

	workers := p.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	units := make([]*decl.Unit, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range inputs {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u, err := src.Unit(gctx)
			if err != nil {
				return fmt.Errorf("loading %s: %w", src.Name(), err)
			}
			if u == nil {
				return fmt.Errorf("loading %s: no unit produced", src.Name())
			}
			if u.Name == "" {
				u.Name = src.Name()
			}
			if err := decl.ValidateUnit(u); err != nil {
				return fmt.Errorf("validating %s: %w", src.Name(), err)
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		failSpan(span, err)
		return nil, err
	}
	return units, nil
}

// stubIncludes returns configured unchanged when set. Otherwise it lists
// the base name of every header input once, in input order.
func stubIncludes(configured []string, inputs []Source) []string {
	if len(configured) > 0 {
		return configured
	}
	var out []string
	seen := make(map[string]bool)
	for _, src := range inputs {
		name := src.Name()
		if !frontend.IsHeader(name) {
			continue
		}
		base := filepath.Base(name)
		if !seen[base] {
			seen[base] = true
			out = append(out, base)
		}
	}
	return out
}

// emit renders every artifact into a bundle.
func (p *Pipeline) emit(res *Result) (*artifact.Bundle, error) {
	out := p.cfg.Output
	b := &artifact.Bundle{
		RunID:          res.RunID,
		Project:        out.Project,
		Label:          out.Label,
		CreatedAtMilli: p.options.Now().UnixMilli(),
	}

	src, err := emit.StubSource(res.Stubs, emit.StubOptions{
		Includes: res.Includes,
		Guard:    p.cfg.Stub.Guard,
	})
	if err != nil {
		return nil, fmt.Errorf("stub source: %w", err)
	}
	add := func(path string, content []byte) {
		if path != "" {
			b.Files = append(b.Files, artifact.File{Path: path, Content: content})
		}
	}
	add(out.StubFile, src)
	add(out.DeclarationsFile, emit.Declarations(res.Table, res.Classification))

	graphml, err := emit.GraphML(res.CallGraph.Graph)
	if err != nil {
		return nil, fmt.Errorf("graphml: %w", err)
	}
	add(out.GraphFile, graphml)

	if out.GraphJSONFile != "" {
		data, err := json.MarshalIndent(res.CallGraph.Graph.ToSerializable(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("graph json: %w", err)
		}
		add(out.GraphJSONFile, data)
	}

	report, err := json.MarshalIndent(res.Diagnostics.Items(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	add(DiagnosticsFile, report)
	return b, nil
}

func (p *Pipeline) deliver(ctx context.Context, res *Result) error {
	ctx, span, end := startPhase(ctx, PhaseDeliver)
	defer end()

	if p.options.Sink != nil {
		if err := p.options.Sink.Write(ctx, res.Bundle); err != nil {
			failSpan(span, err)
			return fmt.Errorf("writing artifacts: %w", err)
		}
	}
	if p.options.GraphLoader != nil {
		if err := p.options.GraphLoader.Load(ctx, res.CallGraph.Graph); err != nil {
			failSpan(span, err)
			return fmt.Errorf("loading call graph: %w", err)
		}
	}
	return nil
}

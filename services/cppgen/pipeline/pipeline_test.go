// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/cppgen/services/cppgen/artifact"
	"github.com/AleutianAI/cppgen/services/cppgen/callgraph"
	"github.com/AleutianAI/cppgen/services/cppgen/config"
	"github.com/AleutianAI/cppgen/services/cppgen/decl"
	"github.com/AleutianAI/cppgen/services/cppgen/diag"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

type recordingSink struct {
	mu      sync.Mutex
	bundles []*artifact.Bundle
	err     error
}

func (s *recordingSink) Write(_ context.Context, b *artifact.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.bundles = append(s.bundles, b)
	return nil
}

type recordingLoader struct {
	graphs []*callgraph.Graph
}

func (l *recordingLoader) Load(_ context.Context, g *callgraph.Graph) error {
	l.graphs = append(l.graphs, g)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Defaults()
	require.NoError(t, err)
	return cfg
}

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func newTestPipeline(t *testing.T, cfg *config.Config, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithRunIDs(func() string { return "run-1" }),
		WithClock(fixedClock),
	}, opts...)
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	return p
}

const demoHeader = `
#ifndef DEMO_HPP
#define DEMO_HPP
namespace app {
class Ifs2 {
public:
    virtual int value() const = 0;
};

class Ifs1 {
public:
    virtual ~Ifs1() {}
    virtual Ifs2& child() = 0;
    virtual void run(int times) = 0;
};

class Dummy {
public:
    void fun() {}
};

class Widget {
public:
    void tick() {
        d.fun();
        for (int i = 0; i < 3; ++i) {
            helper();
        }
    }
    void helper() {}

private:
    Dummy d;
};
}
#endif
`

func writeHeader(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "demo.hpp")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestStubIncludes(t *testing.T) {
	inputs := []Source{
		FileSource("/src/a/ifs.hpp"),
		FileSource("/src/decls.json"),
		UnitSource{U: &decl.Unit{Name: "mem.h"}},
		FileSource("/src/b/ifs.hpp"),
	}
	assert.Equal(t, []string{"ifs.hpp", "mem.h"}, stubIncludes(nil, inputs))
	assert.Equal(t, []string{"api/ifs.hpp"}, stubIncludes([]string{"api/ifs.hpp"}, inputs))
	assert.Empty(t, stubIncludes(nil, []Source{FileSource("decls.yaml")}))
}

func TestRun_Header(t *testing.T) {
	exporter := setupTestTracer(t)
	sink := &recordingSink{}
	loader := &recordingLoader{}
	p := newTestPipeline(t, testConfig(t), WithSink(sink), WithGraphLoader(loader))

	res, err := p.Run(context.Background(), FileSources(writeHeader(t, demoHeader)))
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 4, res.Table.Len())
	assert.Equal(t, 0, res.Diagnostics.Len(), res.Diagnostics.String())

	names := make([]string, 0, len(res.Stubs))
	for _, s := range res.Stubs {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"Stubapp_Ifs1", "Stubapp_Ifs2"}, names)

	edges := res.CallGraph.Graph.Edges()
	assert.Contains(t, edges, callgraph.Edge{Caller: "app::Widget::tick", Callee: "app::Dummy::fun"})
	assert.Contains(t, edges, callgraph.Edge{Caller: "app::Widget::tick", Callee: "app::Widget::helper"})

	require.NotNil(t, res.Bundle)
	assert.Equal(t, fixedClock().UnixMilli(), res.Bundle.CreatedAtMilli)
	paths := make([]string, 0, len(res.Bundle.Files))
	for _, f := range res.Bundle.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"stubs.hpp", "declarations.hpp", "callgraph.graphml", DiagnosticsFile}, paths)

	stubs, ok := res.Bundle.File("stubs.hpp")
	require.True(t, ok)
	assert.Contains(t, string(stubs.Content), "class Stubapp_Ifs1")
	assert.Equal(t, []string{"demo.hpp"}, res.Includes)
	assert.Contains(t, string(stubs.Content), "#include \"demo.hpp\"", "header inputs are included by default")
	decls, ok := res.Bundle.File("declarations.hpp")
	require.True(t, ok)
	assert.Less(t, strings.Index(string(decls.Content), "class Dummy"),
		strings.Index(string(decls.Content), "class Widget"), "owned classes come first")

	require.Len(t, sink.bundles, 1)
	assert.Same(t, res.Bundle, sink.bundles[0])
	require.Len(t, loader.graphs, 1)
	assert.Same(t, res.CallGraph.Graph, loader.graphs[0])

	for _, phase := range []string{PhaseIngest, PhaseMerge, PhaseClassify, PhaseGenerate, PhaseCallgraph, PhaseEmit, PhaseDeliver} {
		assert.Contains(t, res.Durations, phase)
	}

	spans := map[string]bool{}
	for _, s := range exporter.GetSpans() {
		spans[s.Name] = true
	}
	for _, name := range []string{"pipeline.Run", "pipeline.ingest", "pipeline.merge", "pipeline.classify", "pipeline.emit"} {
		assert.True(t, spans[name], name)
	}
}

func unresolvedUnit() *decl.Unit {
	w := &decl.Declaration{Name: "Widget", Kind: decl.KindClass, FullyDefined: true}
	w.Fields = []*decl.Field{{Name: "m", Type: decl.ParseType("Missing*")}}
	w.Normalize()
	return &decl.Unit{Name: "widget.json", Declarations: []*decl.Declaration{w}}
}

func TestRun_DiagnosticsReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.GraphJSONFile = "callgraph.json"
	p := newTestPipeline(t, cfg)

	res, err := p.Run(context.Background(), []Source{UnitSource{U: unresolvedUnit()}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Diagnostics.Count(diag.KindUnresolvedReference))

	f, ok := res.Bundle.File(DiagnosticsFile)
	require.True(t, ok)
	var report []diag.Diagnostic
	require.NoError(t, json.Unmarshal(f.Content, &report))
	require.Len(t, report, 1)
	assert.Equal(t, diag.KindUnresolvedReference, report[0].Kind)
	assert.Equal(t, "Widget", report[0].Subject)

	_, ok = res.Bundle.File("callgraph.json")
	assert.True(t, ok)
}

func TestRun_Strict(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Strict = true
	p := newTestPipeline(t, cfg)

	res, err := p.Run(context.Background(), []Source{UnitSource{U: unresolvedUnit()}})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrStrict)
}

func TestRun_FatalDiagnosticsAbort(t *testing.T) {
	a := &decl.Declaration{Name: "A", FullyDefined: true,
		Fields: []*decl.Field{{Name: "b", Type: decl.Named("B")}}}
	b := &decl.Declaration{Name: "B", FullyDefined: true,
		Fields: []*decl.Field{{Name: "a", Type: decl.Named("A")}}}
	a.Normalize()
	b.Normalize()
	sink := &recordingSink{}
	p := newTestPipeline(t, testConfig(t), WithSink(sink))

	_, err := p.Run(context.Background(), []Source{UnitSource{U: &decl.Unit{
		Name: "cycle.json", Declarations: []*decl.Declaration{a, b},
	}}})
	assert.ErrorIs(t, err, diag.ErrInvalidOwnershipCycle)
	assert.Empty(t, sink.bundles, "nothing is delivered after a fatal error")
}

func TestRun_MalformedInput(t *testing.T) {
	bad := &decl.Declaration{Name: "Bad", Kind: decl.KindClass, FullyDefined: true,
		Methods: []*decl.Method{{Name: "f", PureVirtual: true, Virtual: true, Return: decl.Void()}}}
	p := newTestPipeline(t, testConfig(t))

	_, err := p.Run(context.Background(), []Source{
		UnitSource{U: unresolvedUnit()},
		UnitSource{U: &decl.Unit{Name: "bad.json", Declarations: []*decl.Declaration{bad}}},
	})
	assert.ErrorIs(t, err, diag.ErrMalformedDeclaration)
	assert.ErrorContains(t, err, "bad.json")
}

func TestRun_SourceErrors(t *testing.T) {
	p := newTestPipeline(t, testConfig(t))

	_, err := p.Run(context.Background(), []Source{UnitSource{}})
	assert.ErrorContains(t, err, "nil unit")

	_, err = p.Run(context.Background(), FileSources(filepath.Join(t.TempDir(), "input.txt")))
	assert.ErrorContains(t, err, "unsupported input type")
}

func TestRun_SinkFailure(t *testing.T) {
	boom := errors.New("disk full")
	p := newTestPipeline(t, testConfig(t), WithSink(&recordingSink{err: boom}))

	_, err := p.Run(context.Background(), []Source{UnitSource{U: unresolvedUnit()}})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "writing artifacts")
}

func TestRun_Deterministic(t *testing.T) {
	header := writeHeader(t, demoHeader)
	run := func() *artifact.Bundle {
		res, err := newTestPipeline(t, testConfig(t)).Run(context.Background(), FileSources(header))
		require.NoError(t, err)
		return res.Bundle
	}
	first, second := run(), run()
	require.Equal(t, len(first.Files), len(second.Files))
	for i := range first.Files {
		assert.Equal(t, first.Files[i].Content, second.Files[i].Content, first.Files[i].Path)
	}
}

func TestRun_MultipleUnitsMergeInOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Workers = 2

	fwd := &decl.Declaration{Name: "Impl", Kind: decl.KindClass}
	owner := &decl.Declaration{Name: "Owner", Kind: decl.KindClass, FullyDefined: true,
		Fields: []*decl.Field{{Name: "impl", Type: decl.Named("Impl")}}}
	owner.Normalize()
	impl := &decl.Declaration{Name: "Impl", Kind: decl.KindClass, FullyDefined: true}

	p := newTestPipeline(t, cfg)
	res, err := p.Run(context.Background(), []Source{
		UnitSource{U: &decl.Unit{Name: "owner.json", Declarations: []*decl.Declaration{fwd, owner}}},
		UnitSource{U: &decl.Unit{Name: "impl.json", Declarations: []*decl.Declaration{impl}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Diagnostics.Len(), "the definition from a later unit completes the forward declaration")
	got, ok := res.Table.Lookup("Impl")
	require.True(t, ok)
	assert.True(t, got.FullyDefined)
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/cppgen/services/cppgen/decl"
)

// Body is one function or method body as an ordered list of call expressions.
type Body struct {
	// Caller is the qualified name, e.g. "single_call" or "Methods::~Methods".
	Caller string

	// Owner is the class of a method, or empty.
	Owner string

	Calls []decl.CallExpr
}

// BodiesFromTable collects every body in the merged symbol table: inline
// method bodies in declaration order, then function bodies in first-seen order.
func BodiesFromTable(st *decl.SymbolTable) []Body {
	var out []Body
	for _, d := range st.Declarations() {
		for _, m := range d.Methods {
			if !m.HasBody {
				continue
			}
			out = append(out, Body{Caller: d.Name + "::" + m.Name, Owner: d.Name, Calls: m.Body})
		}
	}
	for _, fn := range st.Functions() {
		out = append(out, Body{Caller: fn.Name, Owner: fn.Owner, Calls: fn.Calls})
	}
	return out
}

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// MaxNodes is the maximum number of nodes (passed to Graph).
	MaxNodes int

	// MaxEdges is the maximum number of edges (passed to Graph).
	MaxEdges int

	// Ignore drops callees it returns true for, e.g. standard library
	// names. Nil keeps every callee.
	Ignore func(callee string) bool

	Logger *slog.Logger
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithBuilderMaxNodes sets the maximum number of nodes.
func WithBuilderMaxNodes(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxNodes = n
	}
}

// WithBuilderMaxEdges sets the maximum number of edges.
func WithBuilderMaxEdges(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxEdges = n
	}
}

// WithIgnore sets the callee filter.
func WithIgnore(fn func(callee string) bool) BuilderOption {
	return func(o *BuilderOptions) {
		o.Ignore = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		o.Logger = logger
	}
}

// BodyError records a body or call the builder could not use.
type BodyError struct {
	Caller string
	Err    error
}

// Error implements error.
func (e BodyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Caller, e.Err)
}

// Unwrap returns the cause.
func (e BodyError) Unwrap() error {
	return e.Err
}

// BuildStats summarizes a build.
type BuildStats struct {
	BodiesProcessed int
	NodesCreated    int
	ExternalNodes   int
	EdgesCreated    int

	// CallSites counts every call expression walked, nested ones included.
	CallSites int

	// DuplicateCallSites counts call expressions whose edge already existed.
	DuplicateCallSites int

	IgnoredCallSites int
	DurationMilli    int64
	DurationMicro    int64
}

// BuildResult is the output of Build.
type BuildResult struct {
	Graph      *Graph
	BodyErrors []BodyError
	Stats      BuildStats

	// Incomplete is true when the build stopped early (cancellation or a
	// graph limit). Graph then holds what was built so far.
	Incomplete bool
}

// Builder constructs call graphs from bodies.
//
// The builder is stateless and can be reused across multiple builds.
// Each Build() call creates a new graph.
//
// Thread Safety:
//
//	Builder is safe for concurrent use. Each Build() call operates
//	independently with its own internal state.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a new Builder with the given options.
//
// Example:
//
//	builder := NewBuilder(
//	    WithIgnore(func(n string) bool { return strings.HasPrefix(n, "std::") }),
//	)
func NewBuilder(opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Builder{options: options}
}

// buildState holds mutable state during a single build operation.
type buildState struct {
	graph     *Graph
	result    *BuildResult
	startTime time.Time
}

// Build constructs a call graph from the given bodies.
//
// Description:
//
//	A single linear pass per body; no closure is computed. Every caller
//	becomes a function node, every callee a node (external when no body
//	names it), and every distinct (caller, callee) pair exactly one edge,
//	however many call sites, branches or loop iterations produce it.
//	Calls nested in another call's arguments count as calls of the
//	enclosing body. Self-calls are ordinary edges.
//
// Inputs:
//
//	ctx - Context for cancellation. Build checks it between bodies.
//	bodies - The bodies, in the order that defines first-seen.
//
// Outputs:
//
//	*BuildResult - The graph, per-body errors, and statistics.
//	error - Non-nil only for fatal errors. Cancellation and limits return
//	        a partial result with Incomplete set.
//
// Build Phases:
//
//  1. COLLECT: Add every caller as a function node
//  2. EXTRACT EDGES: Walk call expressions, adding callee nodes and edges
//  3. FINALIZE: Freeze graph and compute statistics
func (b *Builder) Build(ctx context.Context, bodies []Body) (*BuildResult, error) {
	ctx, span := startBuildSpan(ctx, len(bodies))
	defer span.End()

	state := &buildState{
		graph: NewGraph(
			WithMaxNodes(b.options.MaxNodes),
			WithMaxEdges(b.options.MaxEdges),
		),
		result: &BuildResult{
			BodyErrors: make([]BodyError, 0),
		},
		startTime: time.Now(),
	}
	state.result.Graph = state.graph

	if err := b.collectPhase(ctx, state, bodies); err != nil {
		return b.finish(ctx, span, state, true), nil
	}
	if err := b.extractEdgesPhase(ctx, state, bodies); err != nil {
		return b.finish(ctx, span, state, true), nil
	}
	return b.finish(ctx, span, state, false), nil
}

func (b *Builder) finish(ctx context.Context, span trace.Span, state *buildState, incomplete bool) *BuildResult {
	state.result.Incomplete = incomplete
	state.graph.Freeze()
	state.graph.BuiltAtMilli = time.Now().UnixMilli()

	duration := time.Since(state.startTime)
	state.result.Stats.DurationMilli = duration.Milliseconds()
	state.result.Stats.DurationMicro = duration.Microseconds()

	setBuildSpanResult(span, state.result.Stats, incomplete)
	recordBuildMetrics(ctx, duration, state.result.Stats, !incomplete)

	b.options.Logger.Debug("call graph built",
		slog.Int("nodes", state.result.Stats.NodesCreated),
		slog.Int("edges", state.result.Stats.EdgesCreated),
		slog.Int("call_sites", state.result.Stats.CallSites),
		slog.Bool("incomplete", incomplete),
	)
	return state.result
}

// collectPhase adds every caller as a function node.
func (b *Builder) collectPhase(ctx context.Context, state *buildState, bodies []Body) error {
	for i, body := range bodies {
		if err := ctx.Err(); err != nil {
			return err
		}
		if body.Caller == "" {
			state.result.BodyErrors = append(state.result.BodyErrors, BodyError{
				Caller: fmt.Sprintf("body[%d]", i),
				Err:    errors.New("body has no caller name"),
			})
			continue
		}
		before := state.graph.NodeCount()
		if _, err := state.graph.AddNode(body.Caller, NodeFunction, body.Owner); err != nil {
			state.result.BodyErrors = append(state.result.BodyErrors, BodyError{Caller: body.Caller, Err: err})
			return err
		}
		state.result.Stats.NodesCreated += state.graph.NodeCount() - before
	}
	return nil
}

// extractEdgesPhase walks each body's calls.
func (b *Builder) extractEdgesPhase(ctx context.Context, state *buildState, bodies []Body) error {
	for _, body := range bodies {
		if err := ctx.Err(); err != nil {
			return err
		}
		if body.Caller == "" {
			continue
		}
		if err := b.walkCalls(state, body.Caller, body.Calls); err != nil {
			return err
		}
		state.result.Stats.BodiesProcessed++
	}
	return nil
}

// walkCalls visits calls in lexical order: the callee, then the calls in
// its arguments. Only graph-limit errors are returned.
func (b *Builder) walkCalls(state *buildState, caller string, calls []decl.CallExpr) error {
	for _, call := range calls {
		state.result.Stats.CallSites++
		if err := b.addCall(state, caller, call.Callee); err != nil {
			return err
		}
		if err := b.walkCalls(state, caller, call.Args); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) addCall(state *buildState, caller, callee string) error {
	if callee == "" {
		state.result.BodyErrors = append(state.result.BodyErrors, BodyError{
			Caller: caller,
			Err:    errors.New("call expression without a callee"),
		})
		return nil
	}
	if b.options.Ignore != nil && b.options.Ignore(callee) {
		state.result.Stats.IgnoredCallSites++
		return nil
	}

	if _, ok := state.graph.Node(callee); !ok {
		if _, err := state.graph.AddNode(callee, NodeExternal, ""); err != nil {
			state.result.BodyErrors = append(state.result.BodyErrors, BodyError{Caller: caller, Err: err})
			return err
		}
		state.result.Stats.NodesCreated++
		state.result.Stats.ExternalNodes++
	}

	added, err := state.graph.AddEdge(caller, callee)
	if err != nil {
		state.result.BodyErrors = append(state.result.BodyErrors, BodyError{Caller: caller, Err: err})
		return err
	}
	if added {
		state.result.Stats.EdgesCreated++
	} else {
		state.result.Stats.DuplicateCallSites++
	}
	return nil
}

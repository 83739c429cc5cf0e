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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("cppgen.callgraph")

var (
	buildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cppgen",
		Subsystem: "callgraph",
		Name:      "build_duration_seconds",
		Help:      "Duration of call graph builds.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"status"})

	buildEdgesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cppgen",
		Subsystem: "callgraph",
		Name:      "edges_total",
		Help:      "Distinct call edges created.",
	})

	buildDuplicateCallSitesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cppgen",
		Subsystem: "callgraph",
		Name:      "duplicate_call_sites_total",
		Help:      "Call expressions collapsed into an existing edge.",
	})
)

func startBuildSpan(ctx context.Context, bodies int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "callgraph.Builder.Build",
		trace.WithAttributes(attribute.Int("callgraph.bodies", bodies)),
	)
}

func setBuildSpanResult(span trace.Span, stats BuildStats, incomplete bool) {
	span.SetAttributes(
		attribute.Int("callgraph.nodes", stats.NodesCreated),
		attribute.Int("callgraph.edges", stats.EdgesCreated),
		attribute.Int("callgraph.call_sites", stats.CallSites),
		attribute.Bool("callgraph.incomplete", incomplete),
	)
	if incomplete {
		span.SetStatus(codes.Error, "build incomplete")
	}
}

func recordBuildMetrics(_ context.Context, duration time.Duration, stats BuildStats, success bool) {
	status := "success"
	if !success {
		status = "incomplete"
	}
	buildDuration.WithLabelValues(status).Observe(duration.Seconds())
	buildEdgesTotal.Add(float64(stats.EdgesCreated))
	buildDuplicateCallSitesTotal.Add(float64(stats.DuplicateCallSites))
}

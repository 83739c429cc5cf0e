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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/cppgen/services/cppgen/diag"
)

// Phase names, used as span names and metric labels.
const (
	PhaseIngest    = "ingest"
	PhaseMerge     = "merge"
	PhaseClassify  = "classify"
	PhaseGenerate  = "generate"
	PhaseCallgraph = "callgraph"
	PhaseEmit      = "emit"
	PhaseDeliver   = "deliver"
)

var tracer = otel.Tracer("cppgen.pipeline")

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cppgen",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by outcome.",
	}, []string{"status"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cppgen",
		Subsystem: "pipeline",
		Name:      "phase_duration_seconds",
		Help:      "Duration of each pipeline phase.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"phase"})

	stubsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cppgen",
		Subsystem: "pipeline",
		Name:      "stubs_generated_total",
		Help:      "Stubs generated across runs.",
	})

	diagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cppgen",
		Subsystem: "pipeline",
		Name:      "diagnostics_total",
		Help:      "Diagnostics reported, by kind.",
	}, []string{"kind"})
)

// startPhase opens a child span for one phase. The returned func ends the
// span and records the phase latency.
func startPhase(ctx context.Context, phase string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func()) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline."+phase, trace.WithAttributes(attrs...))
	return ctx, span, func() {
		phaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func recordRunMetrics(res *Result, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	runsTotal.WithLabelValues(status).Inc()
	if res == nil {
		return
	}
	stubsGeneratedTotal.Add(float64(len(res.Stubs)))
	for _, d := range res.Diagnostics.Items() {
		diagnosticsTotal.WithLabelValues(d.Kind.String()).Inc()
	}
}

func diagAttrs(l diag.List) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("diag.total", l.Len()),
		attribute.Int("diag.unresolved_reference", l.Count(diag.KindUnresolvedReference)),
		attribute.Int("diag.duplicate_definition", l.Count(diag.KindDuplicateDefinition)),
	}
}

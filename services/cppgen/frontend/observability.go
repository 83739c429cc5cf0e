// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package frontend

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("cppgen.frontend")

var (
	parseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cppgen",
		Subsystem: "frontend",
		Name:      "parse_duration_seconds",
		Help:      "Duration of header parses.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"status"})

	declarationsParsedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cppgen",
		Subsystem: "frontend",
		Name:      "declarations_total",
		Help:      "Class declarations extracted from headers.",
	})
)

func startParseSpan(ctx context.Context, filePath string, size int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "frontend.Parser.Parse",
		trace.WithAttributes(
			attribute.String("file.path", filePath),
			attribute.Int("file.size", size),
		),
	)
}

func setParseSpanResult(span trace.Span, declarations, functions int, syntaxErrors bool) {
	span.SetAttributes(
		attribute.Int("frontend.declarations", declarations),
		attribute.Int("frontend.functions", functions),
		attribute.Bool("frontend.syntax_errors", syntaxErrors),
	)
}

func recordParseMetrics(duration time.Duration, declarations int, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	parseDuration.WithLabelValues(status).Observe(duration.Seconds())
	declarationsParsedTotal.Add(float64(declarations))
}

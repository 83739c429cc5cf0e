// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package emit renders generator output as deterministic text: C++ stub
// source, C++ declarations in definition order, and GraphML call graphs.
package emit

import (
	"fmt"
	"strings"
)

// indentUnit is four spaces, matching the emitted C++ style.
const indentUnit = "    "

// codeWriter accumulates indented lines.
type codeWriter struct {
	sb     strings.Builder
	indent int
}

func (w *codeWriter) line(format string, args ...any) {
	if format == "" {
		w.sb.WriteByte('\n')
		return
	}
	w.sb.WriteString(strings.Repeat(indentUnit, w.indent))
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteByte('\n')
}

func (w *codeWriter) blank() {
	w.sb.WriteByte('\n')
}

func (w *codeWriter) in() {
	w.indent++
}

func (w *codeWriter) out() {
	if w.indent > 0 {
		w.indent--
	}
}

func (w *codeWriter) bytes() []byte {
	return []byte(w.sb.String())
}

// splitQualified splits "a::b::C" into (["a", "b"], "C").
func splitQualified(name string) ([]string, string) {
	parts := strings.Split(name, "::")
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// openNamespaces writes "namespace a { namespace b {" for ns.
func (w *codeWriter) openNamespaces(ns []string) {
	for _, n := range ns {
		w.line("namespace %s {", n)
	}
}

func (w *codeWriter) closeNamespaces(ns []string) {
	for i := len(ns) - 1; i >= 0; i-- {
		w.line("} // namespace %s", ns[i])
	}
}

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
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/cppgen/services/cppgen/artifact"
	"github.com/AleutianAI/cppgen/services/cppgen/classify"
	"github.com/AleutianAI/cppgen/services/cppgen/diag"
	"github.com/AleutianAI/cppgen/services/cppgen/pipeline"
)

var (
	criticalColor = lipgloss.Color("#CC3333")
	warningColor  = lipgloss.Color("#FF8800")
	goodColor     = lipgloss.Color("#228B22")
	infoColor     = lipgloss.Color("#4682B4")
	mutedColor    = lipgloss.Color("#888888")
)

// styles are plain when the writer is not a terminal.
type styles struct {
	title    lipgloss.Style
	critical lipgloss.Style
	warning  lipgloss.Style
	good     lipgloss.Style
	info     lipgloss.Style
	muted    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	if !isTerminal(w) {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain}
	}
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(infoColor),
		critical: lipgloss.NewStyle().Bold(true).Foreground(criticalColor),
		warning:  lipgloss.NewStyle().Bold(true).Foreground(warningColor),
		good:     lipgloss.NewStyle().Bold(true).Foreground(goodColor),
		info:     lipgloss.NewStyle().Foreground(infoColor),
		muted:    lipgloss.NewStyle().Foreground(mutedColor),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// renderDiagnostics prints one line per diagnostic, fatal kinds first
// styled as errors.
func renderDiagnostics(w io.Writer, l diag.List) {
	st := newStyles(w)
	if l.Len() == 0 {
		fmt.Fprintln(w, st.good.Render("no diagnostics"))
		return
	}
	fmt.Fprintln(w, st.title.Render(fmt.Sprintf("%d diagnostic(s)", l.Len())))
	for _, d := range l.Items() {
		label := st.warning.Render("warning")
		if d.Kind.Fatal() {
			label = st.critical.Render("error")
		}
		fmt.Fprintf(w, "  %s %s %s: %s\n", label, st.muted.Render("["+d.Kind.String()+"]"), d.Subject, d.Message)
	}
}

// renderSummary prints what a run produced.
func renderSummary(w io.Writer, res *pipeline.Result) {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render("run "+res.RunID))
	fmt.Fprintf(w, "  declarations %d, stubs %d, call edges %d\n",
		res.Table.Len(), len(res.Stubs), res.CallGraph.Graph.EdgeCount())
	if res.CallGraph.Incomplete {
		fmt.Fprintln(w, "  "+st.warning.Render("call graph truncated at the configured limits"))
	}
	if res.Bundle != nil {
		for _, f := range res.Bundle.Files {
			fmt.Fprintf(w, "  %s %s\n", st.info.Render(f.Path), st.muted.Render(fmt.Sprintf("(%d bytes)", len(f.Content))))
		}
	}
	phases := make([]string, 0, len(res.Durations))
	for p := range res.Durations {
		phases = append(phases, p)
	}
	sort.Strings(phases)
	parts := make([]string, 0, len(phases))
	for _, p := range phases {
		parts = append(parts, fmt.Sprintf("%s=%s", p, res.Durations[p].Round(time.Microsecond)))
	}
	fmt.Fprintln(w, "  "+st.muted.Render(strings.Join(parts, " ")))
	renderDiagnostics(w, res.Diagnostics)
}

// renderClassification prints the definition order and every edge.
func renderClassification(w io.Writer, res *pipeline.Result) {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render("definition order"))
	for i, id := range res.Classification.Order {
		d := res.Table.Get(id)
		fmt.Fprintf(w, "  %3d. %s %s\n", i+1, d.Name, st.muted.Render(d.Kind.String()))
	}
	fmt.Fprintln(w, st.title.Render("edges"))
	for _, e := range res.Classification.Edges {
		class := st.info.Render(e.Class.String())
		if e.Class == classify.Owned {
			class = st.good.Render(e.Class.String())
		}
		target := e.Target
		if !e.Resolved {
			target += " " + st.warning.Render("(unresolved)")
		}
		fmt.Fprintf(w, "  %s.%s %s %s -> %s\n", e.From, e.Member, st.muted.Render(e.Site.String()), class, target)
	}
	renderDiagnostics(w, res.Diagnostics)
}

// renderRuns prints stored run metadata, newest first.
func renderRuns(w io.Writer, runs []*artifact.Metadata) {
	st := newStyles(w)
	if len(runs) == 0 {
		fmt.Fprintln(w, st.muted.Render("no stored runs"))
		return
	}
	for _, m := range runs {
		created := time.UnixMilli(m.CreatedAtMilli).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, "%s  %s  %s  %d files, %d bytes", st.info.Render(m.RunID), created, m.Project, m.FileCount, m.TotalSize)
		if m.Label != "" {
			fmt.Fprintf(w, "  %s", st.muted.Render(m.Label))
		}
		fmt.Fprintln(w)
	}
}

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
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cppgen/services/cppgen/artifact"
	"github.com/AleutianAI/cppgen/services/cppgen/diag"
)

const widgetHeader = `
namespace app {
class Ifs1 {
public:
    virtual int value() const = 0;
    virtual void run(int times) = 0;
};

class Dummy {
public:
    void fun() {}
};

class Widget {
public:
    void tick() { d.fun(); }
private:
    Dummy d;
};
}
`

// inTempDir moves the test into an empty directory so no stray
// cppgen.yaml is picked up and relative output lands there.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExpandInputs(t *testing.T) {
	dir := inTempDir(t)
	b := writeFile(t, filepath.Join(dir, "src", "b.hpp"), "")
	a := writeFile(t, filepath.Join(dir, "src", "a.h"), "")
	writeFile(t, filepath.Join(dir, "src", "notes.txt"), "")
	writeFile(t, filepath.Join(dir, "src", ".git", "x.hpp"), "")
	records := writeFile(t, filepath.Join(dir, "decls.json"), "[]")

	got, err := expandInputs([]string{records, filepath.Join(dir, "src"), b})
	require.NoError(t, err)
	assert.Equal(t, []string{records, a, b}, got)

	_, err = expandInputs(nil)
	assert.Error(t, err)
	_, err = expandInputs([]string{filepath.Join(dir, "missing.hpp")})
	assert.Error(t, err)
}

func TestStubCommand(t *testing.T) {
	dir := inTempDir(t)
	header := writeFile(t, filepath.Join(dir, "widget.hpp"), widgetHeader)

	out, err := execute(t, "stub", header)
	require.NoError(t, err)
	assert.Contains(t, out, "class Stubapp_Ifs1")
	assert.NotContains(t, out, "StubDummy")
	assert.Contains(t, out, "#include \"widget.hpp\"")

	target := filepath.Join(dir, "stubs.hpp")
	out, err = execute(t, "stub", header, "-o", target)
	require.NoError(t, err)
	assert.Empty(t, out)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "class Stubapp_Ifs1")
}

func TestCallgraphCommand(t *testing.T) {
	dir := inTempDir(t)
	header := writeFile(t, filepath.Join(dir, "widget.hpp"), widgetHeader)

	out, err := execute(t, "callgraph", header)
	require.NoError(t, err)
	assert.Contains(t, out, "<graphml")
	assert.Contains(t, out, "app::Dummy::fun")

	out, err = execute(t, "callgraph", header, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "app::Widget::tick")

	_, err = execute(t, "callgraph", header, "--format", "dot")
	assert.Error(t, err)
}

func TestClassifyAndDeclarationsCommands(t *testing.T) {
	dir := inTempDir(t)
	header := writeFile(t, filepath.Join(dir, "widget.hpp"), widgetHeader)

	out, err := execute(t, "classify", header)
	require.NoError(t, err)
	assert.Contains(t, out, "definition order")
	assert.Contains(t, out, "app::Widget.d")

	out, err = execute(t, "declarations", header)
	require.NoError(t, err)
	require.Contains(t, out, "class Dummy {")
	require.Contains(t, out, "class Widget {")
	assert.Less(t, bytes.Index([]byte(out), []byte("class Dummy {")), bytes.Index([]byte(out), []byte("class Widget {")))
}

func TestRunCommand_FileSink(t *testing.T) {
	dir := inTempDir(t)
	header := writeFile(t, filepath.Join(dir, "include", "widget.hpp"), widgetHeader)
	outDir := filepath.Join(dir, "generated")

	out, err := execute(t, "run", filepath.Dir(header), "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "stubs.hpp")

	for _, name := range []string{"stubs.hpp", "declarations.hpp", "callgraph.graphml"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunCommand_UnknownSink(t *testing.T) {
	dir := inTempDir(t)
	header := writeFile(t, filepath.Join(dir, "widget.hpp"), widgetHeader)

	_, err := execute(t, "run", header, "--sink", "ftp")
	assert.Error(t, err)
}

func TestRunsCommands_BadgerSink(t *testing.T) {
	dir := inTempDir(t)
	header := writeFile(t, filepath.Join(dir, "widget.hpp"), widgetHeader)

	_, err := execute(t, "run", header, "--sink", "badger", "--project", "demo", "--label", "nightly")
	require.NoError(t, err)

	out, err := execute(t, "runs", "list", "--project", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "nightly")

	out, err = execute(t, "runs", "show", "latest", "--project", "demo", "--file", "stubs.hpp")
	require.NoError(t, err)
	assert.Contains(t, out, "class Stubapp_Ifs1")

	_, err = execute(t, "runs", "show", "latest", "--project", "demo", "--file", "nope.txt")
	assert.Error(t, err)

	out, err = execute(t, "runs", "list", "--project", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "no stored runs")
}

func TestParseLevel(t *testing.T) {
	lvl, err := parseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = parseLevel("verbose")
	assert.Error(t, err)
}

func TestRenderDiagnostics_Plain(t *testing.T) {
	var buf bytes.Buffer
	renderDiagnostics(&buf, diag.List{})
	assert.Equal(t, "no diagnostics\n", buf.String())

	var l diag.List
	l.Addf(diag.KindUnresolvedReference, "app::Widget", "field d has unknown type %s", "Gadget")
	buf.Reset()
	renderDiagnostics(&buf, l)
	assert.Contains(t, buf.String(), "1 diagnostic(s)")
	assert.Contains(t, buf.String(), "warning [unresolved_reference] app::Widget: field d has unknown type Gadget")
}

func TestRenderRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderRuns(&buf, []*artifact.Metadata{})
	assert.Equal(t, "no stored runs\n", buf.String())
}

func TestWatchInputs_RerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	header := writeFile(t, filepath.Join(dir, "widget.hpp"), widgetHeader)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchInputs(ctx, []string{dir}, 20*time.Millisecond, logger, func(context.Context) error {
			runs.Add(1)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, header, widgetHeader+"\n// edited\n")
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestWatchDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "x.hpp"), "")
	writeFile(t, filepath.Join(dir, ".cache", "y.hpp"), "")
	single := writeFile(t, filepath.Join(t.TempDir(), "z.hpp"), "")

	got, err := watchDirs([]string{dir, single})
	require.NoError(t, err)
	assert.Contains(t, got, dir)
	assert.Contains(t, got, filepath.Join(dir, "a"))
	assert.Contains(t, got, filepath.Dir(single))
	assert.NotContains(t, got, filepath.Join(dir, ".cache"))
}

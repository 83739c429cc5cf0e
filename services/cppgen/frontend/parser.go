// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package frontend reads C++ headers into declaration units.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/AleutianAI/cppgen/services/cppgen/decl"
)

const (
	// DefaultMaxFileSize bounds the header size Parse accepts.
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize is the size above which a parse is logged.
	WarnFileSize = 1024 * 1024
)

var (
	// ErrFileTooLarge is returned when content exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidContent is returned for content that is not UTF-8.
	ErrInvalidContent = errors.New("invalid content")
)

var headerExtensions = []string{".h", ".hh", ".hpp", ".hxx", ".h++"}

// IsHeader reports whether path has a C++ header extension.
func IsHeader(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range headerExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithMaxFileSize sets the largest header Parse accepts. Non-positive values
// are ignored.
func WithMaxFileSize(bytes int64) ParserOption {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) ParserOption {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// Parser extracts classes, methods, fields and function bodies from C++
// headers.
//
// Description:
//
//	Parser is a simplified reader: it understands namespaces, class and
//	struct definitions with base clauses and access specifiers, member
//	functions and data members, and inline or out-of-line function bodies.
//	Templates, macros and typedef resolution are out of scope; a template
//	declaration is skipped and an unresolved alias stays a named type.
//
// Thread Safety:
//
//	Safe for concurrent use. Each Parse call owns its tree-sitter parser.
type Parser struct {
	maxFileSize int64
	logger      *slog.Logger
}

// NewParser creates a Parser with the given options.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extensions returns the header extensions the parser handles.
func (p *Parser) Extensions() []string {
	return append([]string(nil), headerExtensions...)
}

// ParseFile reads and parses one header with a default Parser.
func ParseFile(ctx context.Context, path string) (*decl.Unit, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return NewParser().Parse(ctx, content, path)
}

// Parse extracts a declaration unit from C++ source.
//
// Description:
//
//	Parse runs tree-sitter over content and walks the syntax tree. The
//	walk is error-tolerant: a header with syntax errors yields whatever
//	declarations could be recovered, and the error is logged. Type names
//	written unqualified inside a namespace are qualified when the header
//	declares them, so "Ifs2" inside namespace app becomes "app::Ifs2".
//	Member calls are resolved to the member's class through the caller's
//	field types, "d.fun()" with a field "Dummy d" yielding "Dummy::fun".
//
// Inputs:
//
//	ctx - Checked before and after parsing.
//	content - Header bytes. Must be valid UTF-8.
//	name - Unit name, usually the path.
//
// Outputs:
//
//	*decl.Unit - Declarations in source order and function bodies.
//	error - ErrFileTooLarge, ErrInvalidContent, or a context error.
//
// Thread Safety: Safe for concurrent use.
func (p *Parser) Parse(ctx context.Context, content []byte, name string) (*decl.Unit, error) {
	ctx, span := startParseSpan(ctx, name, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}
	if len(content) > WarnFileSize {
		p.logger.Warn("parsing large header",
			slog.String("file", name),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		recordParseMetrics(time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	hasErrors := root.HasError()
	if hasErrors {
		p.logger.Warn("header contains syntax errors",
			slog.String("file", name))
	}

	w := newWalker(content, name)
	w.scope(root, nil)
	w.resolve()
	w.bodies()

	setParseSpanResult(span, len(w.unit.Declarations), len(w.unit.Functions), hasErrors)
	recordParseMetrics(time.Since(start), len(w.unit.Declarations), true)
	return w.unit, nil
}

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
	"fmt"

	"github.com/AleutianAI/cppgen/services/cppgen/decl"
	"github.com/AleutianAI/cppgen/services/cppgen/frontend"
)

// Source yields one input unit.
type Source interface {
	Name() string
	Unit(ctx context.Context) (*decl.Unit, error)
}

// FileSource reads a declaration record (.json, .yaml, .yml) or a C++
// header (.h, .hh, .hpp, .hxx) from disk.
type FileSource string

// Name returns the path.
func (f FileSource) Name() string { return string(f) }

// Unit loads and decodes the file.
func (f FileSource) Unit(ctx context.Context) (*decl.Unit, error) {
	p := string(f)
	if frontend.IsHeader(p) {
		return frontend.ParseFile(ctx, p)
	}
	if _, ok := decl.FormatForPath(p); ok {
		return decl.LoadUnitFile(p)
	}
	return nil, fmt.Errorf("%s: unsupported input type", p)
}

// UnitSource wraps an in-memory unit.
type UnitSource struct {
	U *decl.Unit
}

// Name returns the unit name.
func (s UnitSource) Name() string {
	if s.U == nil {
		return ""
	}
	return s.U.Name
}

// Unit returns the wrapped unit.
func (s UnitSource) Unit(context.Context) (*decl.Unit, error) {
	if s.U == nil {
		return nil, fmt.Errorf("nil unit")
	}
	return s.U, nil
}

// FileSources converts paths to sources.
func FileSources(paths ...string) []Source {
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		out = append(out, FileSource(p))
	}
	return out
}

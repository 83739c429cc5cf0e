// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package artifact delivers the files produced by one generation run to a
// destination: a local directory, a BadgerDB store, a GCS bucket or an
// S3-compatible bucket.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned when a run or file does not exist in a store.
var ErrNotFound = errors.New("artifact not found")

// File is one generated output.
type File struct {
	// Path is slash-separated and relative, e.g. "stubs/ifs_stub.hpp".
	Path string `json:"path"`

	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content"`
}

// Bundle is every file of one run.
type Bundle struct {
	RunID   string `json:"run_id"`
	Project string `json:"project"`
	Label   string `json:"label,omitempty"`

	// CreatedAtMilli is the run start (Unix milliseconds UTC).
	CreatedAtMilli int64 `json:"created_at_milli"`

	Files []File `json:"files"`
}

// File returns the file with the given path.
func (b *Bundle) File(p string) (File, bool) {
	for _, f := range b.Files {
		if f.Path == p {
			return f, true
		}
	}
	return File{}, false
}

// TotalSize sums the content sizes.
func (b *Bundle) TotalSize() int64 {
	var n int64
	for _, f := range b.Files {
		n += int64(len(f.Content))
	}
	return n
}

// Validate checks the run ID and that every path is clean, relative and
// unique.
func (b *Bundle) Validate() error {
	if b == nil {
		return errors.New("bundle must not be nil")
	}
	if strings.TrimSpace(b.RunID) == "" {
		return errors.New("run_id is required")
	}
	seen := make(map[string]bool, len(b.Files))
	for i, f := range b.Files {
		p, err := cleanPath(f.Path)
		if err != nil {
			return fmt.Errorf("file %d: %w", i, err)
		}
		if seen[p] {
			return fmt.Errorf("file %d: duplicate path %q", i, p)
		}
		seen[p] = true
	}
	return nil
}

// Sink receives a finished bundle.
type Sink interface {
	Write(ctx context.Context, b *Bundle) error
}

// cleanPath normalizes p and rejects absolute paths and parent escapes.
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("path is required")
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q must be relative", p)
	}
	c := path.Clean(p)
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("path %q escapes the output root", p)
	}
	return c, nil
}

// objectKey joins an optional prefix, the run ID and a file path.
func objectKey(prefix, runID, p string) string {
	parts := make([]string, 0, 3)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, strings.TrimSpace(runID), strings.TrimLeft(p, "/"))
	return strings.Join(parts, "/")
}

func contentType(f File) string {
	if f.ContentType != "" {
		return f.ContentType
	}
	switch path.Ext(f.Path) {
	case ".graphml", ".xml":
		return "application/xml"
	case ".json":
		return "application/json"
	case ".h", ".hpp", ".hh", ".cpp", ".cc":
		return "text/x-c++"
	default:
		return "application/octet-stream"
	}
}

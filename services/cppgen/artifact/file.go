// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileSink writes bundles under a local directory.
type FileSink struct {
	// Dir is the output root. Created if missing.
	Dir string

	// PerRun places each run in Dir/<runID>/ instead of Dir directly.
	PerRun bool

	Logger *slog.Logger
}

// NewFileSink creates a FileSink. A nil logger falls back to slog.Default().
func NewFileSink(dir string, perRun bool, logger *slog.Logger) (*FileSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("output directory must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{Dir: dir, PerRun: perRun, Logger: logger}, nil
}

// Write stores every file of b. Existing files are overwritten.
func (s *FileSink) Write(ctx context.Context, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid bundle: %w", err)
	}
	root := s.Dir
	if s.PerRun {
		root = filepath.Join(root, b.RunID)
	}
	for _, f := range b.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, _ := cleanPath(f.Path)
		dst := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
		}
		if err := os.WriteFile(dst, f.Content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
		if s.Logger != nil {
			s.Logger.Debug("artifact written", slog.String("path", dst), slog.Int("bytes", len(f.Content)))
		}
	}
	return nil
}

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
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSConfig selects the bucket and key prefix for GCSSink.
type GCSConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// openWriter opens a writer for one object. Closing it commits the object.
type openWriter func(ctx context.Context, bucket, key, contentType string) io.WriteCloser

// GCSSink uploads bundles to Google Cloud Storage as
// gs://<bucket>/<prefix>/<runID>/<path>.
//
// Thread Safety: Safe for concurrent use.
type GCSSink struct {
	bucket string
	prefix string
	open   openWriter
	close  func() error
	logger *slog.Logger
}

// NewGCSSink creates a client with Application Default Credentials.
func NewGCSSink(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCSSink, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}
	open := func(ctx context.Context, bucket, key, contentType string) io.WriteCloser {
		w := client.Bucket(bucket).Object(key).NewWriter(ctx)
		w.ContentType = contentType
		return w
	}
	s := newGCSSink(cfg, open, logger)
	s.close = client.Close
	return s, nil
}

func newGCSSink(cfg GCSConfig, open openWriter, logger *slog.Logger) *GCSSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSSink{
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: cfg.Prefix,
		open:   open,
		close:  func() error { return nil },
		logger: logger,
	}
}

// Write uploads every file of b.
func (s *GCSSink) Write(ctx context.Context, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid bundle: %w", err)
	}
	for _, f := range b.Files {
		p, _ := cleanPath(f.Path)
		key := objectKey(s.prefix, b.RunID, p)
		w := s.open(ctx, s.bucket, key, contentType(f))
		if _, err := w.Write(f.Content); err != nil {
			_ = w.Close()
			return fmt.Errorf("uploading gs://%s/%s: %w", s.bucket, key, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("committing gs://%s/%s: %w", s.bucket, key, err)
		}
		s.logger.Debug("artifact uploaded", slog.String("bucket", s.bucket), slog.String("key", key))
	}
	return nil
}

// Close releases the client.
func (s *GCSSink) Close() error {
	return s.close()
}

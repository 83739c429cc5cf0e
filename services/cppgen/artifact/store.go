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
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BundleSchemaVersion is bumped whenever the stored bundle layout changes.
const BundleSchemaVersion = "1.0"

// BadgerDB key layout.
const (
	keyPrefixRun      = "cppgen:run:"
	keyPrefixRunIndex = "cppgen:index:"
	keySuffixData     = ":data"
	keySuffixMeta     = ":meta"
	keySuffixLatest   = ":latest"
)

// Metadata describes one stored bundle.
type Metadata struct {
	RunID string `json:"run_id"`

	Project string `json:"project"`

	// ProjectHash is SHA256(Project)[:16] for key grouping.
	ProjectHash string `json:"project_hash"`

	Label string `json:"label,omitempty"`

	CreatedAtMilli int64 `json:"created_at_milli"`

	FileCount int      `json:"file_count"`
	Paths     []string `json:"paths"`
	TotalSize int64    `json:"total_size"`

	SchemaVersion string `json:"schema_version"`

	// CompressedSize is the size of the gzip-compressed JSON payload in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA256 of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// Store keeps run bundles in BadgerDB.
//
// Description:
//
//	Each bundle is stored as gzip-compressed JSON with a SHA256 content
//	hash checked on load, plus a metadata record for listing and a
//	per-project "latest" pointer.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewStore creates a Store over an opened DB. The caller closes the DB.
func NewStore(db *badger.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("badger db must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	return &Store{db: db, logger: logger}, nil
}

// OpenStore opens (creating if needed) a BadgerDB directory and wraps it.
// Close releases the DB.
func OpenStore(dir string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("badger directory must not be empty")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", dir, err)
	}
	s, err := NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write implements Sink by saving the bundle.
func (s *Store) Write(ctx context.Context, b *Bundle) error {
	_, err := s.Save(ctx, b)
	return err
}

// Save persists a bundle and moves the project's latest pointer to it.
//
// Description:
//
//	Key Schema:
//
//	cppgen:run:{projectHash}:{runID}:data -> gzip(JSON(Bundle))
//	cppgen:run:{projectHash}:{runID}:meta -> JSON(Metadata)
//	cppgen:run:{projectHash}:latest       -> runID
//	cppgen:index:{runID}                  -> projectHash
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	b - The bundle. Must pass Validate.
//
// Outputs:
//
//	*Metadata - Metadata about the saved bundle.
//	error - Non-nil if validation, serialization or storage fails.
func (s *Store) Save(ctx context.Context, b *Bundle) (*Metadata, error) {
	if ctx == nil {
		return nil, errors.New("ctx must not be nil")
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bundle: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshaling bundle: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing bundle: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	projectHash := ProjectHash(b.Project)
	paths := make([]string, 0, len(b.Files))
	for _, f := range b.Files {
		paths = append(paths, f.Path)
	}
	meta := &Metadata{
		RunID:          b.RunID,
		Project:        b.Project,
		ProjectHash:    projectHash,
		Label:          b.Label,
		CreatedAtMilli: b.CreatedAtMilli,
		FileCount:      len(b.Files),
		Paths:          paths,
		TotalSize:      b.TotalSize(),
		SchemaVersion:  BundleSchemaVersion,
		CompressedSize: int64(len(compressedData)),
		ContentHash:    hashBytes(compressedData),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(dataKey(projectHash, b.RunID), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set(metaKey(projectHash, b.RunID), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set(latestKey(projectHash), []byte(b.RunID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		if err := txn.Set(indexKey(b.RunID), []byte(projectHash)); err != nil {
			return fmt.Errorf("storing reverse index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing bundle to badger: %w", err)
	}

	s.logger.Info("bundle saved",
		slog.String("run_id", b.RunID),
		slog.String("project", b.Project),
		slog.Int("files", meta.FileCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load retrieves a bundle by run ID, verifying its content hash.
func (s *Store) Load(ctx context.Context, runID string) (*Bundle, *Metadata, error) {
	if ctx == nil {
		return nil, nil, errors.New("ctx must not be nil")
	}
	if runID == "" {
		return nil, nil, errors.New("run ID must not be empty")
	}
	projectHash, err := s.projectHashOf(runID)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up run %s: %w", runID, err)
	}
	return s.loadByKeys(projectHash, runID)
}

// LoadLatest loads the most recently saved bundle of a project.
func (s *Store) LoadLatest(ctx context.Context, project string) (*Bundle, *Metadata, error) {
	if ctx == nil {
		return nil, nil, errors.New("ctx must not be nil")
	}
	projectHash := ProjectHash(project)
	var runID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey(projectHash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			runID = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("reading latest pointer for %q: %w", project, notFound(err))
	}
	return s.loadByKeys(projectHash, runID)
}

// List returns metadata newest first. An empty project lists every
// project; limit <= 0 means 100.
func (s *Store) List(ctx context.Context, project string, limit int) ([]*Metadata, error) {
	if ctx == nil {
		return nil, errors.New("ctx must not be nil")
	}
	if limit <= 0 {
		limit = 100
	}

	prefix := keyPrefixRun
	if project != "" {
		prefix = keyPrefixRun + ProjectHash(project) + ":"
	}

	var results []*Metadata
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, keySuffixMeta) {
				continue
			}
			var meta Metadata
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				s.logger.Warn("skipping corrupt metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing bundles: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CreatedAtMilli != results[j].CreatedAtMilli {
			return results[i].CreatedAtMilli > results[j].CreatedAtMilli
		}
		return results[i].RunID < results[j].RunID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a bundle. The latest pointer is dropped when it named the
// deleted run.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if ctx == nil {
		return errors.New("ctx must not be nil")
	}
	if runID == "" {
		return errors.New("run ID must not be empty")
	}
	projectHash, err := s.projectHashOf(runID)
	if err != nil {
		return fmt.Errorf("looking up run %s: %w", runID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range [][]byte{dataKey(projectHash, runID), metaKey(projectHash, runID), indexKey(runID)} {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting %s: %w", k, err)
			}
		}

		item, err := txn.Get(latestKey(projectHash))
		if err != nil {
			return nil
		}
		var current string
		_ = item.Value(func(val []byte) error {
			current = string(val)
			return nil
		})
		if current == runID {
			if err := txn.Delete(latestKey(projectHash)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting latest pointer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}

	s.logger.Info("bundle deleted", slog.String("run_id", runID))
	return nil
}

func (s *Store) loadByKeys(projectHash, runID string) (*Bundle, *Metadata, error) {
	var compressedData, metaJSON []byte
	err := s.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get(dataKey(projectHash, runID))
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", runID, notFound(err))
		}
		if compressedData, err = dataItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying data for %s: %w", runID, err)
		}
		metaItem, err := txn.Get(metaKey(projectHash, runID))
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", runID, notFound(err))
		}
		if metaJSON, err = metaItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying metadata for %s: %w", runID, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", runID, err)
	}
	if actual := hashBytes(compressedData); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("integrity check failed for %s: expected hash %s, got %s", runID, meta.ContentHash, actual)
	}
	if meta.SchemaVersion != BundleSchemaVersion {
		return nil, nil, fmt.Errorf("unsupported bundle schema version %q", meta.SchemaVersion)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing bundle %s: %w", runID, err)
	}
	defer gr.Close()
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", runID, err)
	}

	var b Bundle
	if err := json.Unmarshal(jsonData, &b); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling bundle %s: %w", runID, err)
	}
	return &b, &meta, nil
}

func (s *Store) projectHashOf(runID string) (string, error) {
	var projectHash string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			projectHash = string(val)
			return nil
		})
	})
	if err != nil {
		return "", notFound(err)
	}
	return projectHash, nil
}

// ProjectHash returns SHA256(project)[:16], the key prefix of a project.
func ProjectHash(project string) string {
	return hashBytes([]byte(project))[:16]
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// notFound maps badger's missing-key error onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

func dataKey(projectHash, runID string) []byte {
	return []byte(keyPrefixRun + projectHash + ":" + runID + keySuffixData)
}

func metaKey(projectHash, runID string) []byte {
	return []byte(keyPrefixRun + projectHash + ":" + runID + keySuffixMeta)
}

func latestKey(projectHash string) []byte {
	return []byte(keyPrefixRun + projectHash + keySuffixLatest)
}

func indexKey(runID string) []byte {
	return []byte(keyPrefixRunIndex + runID)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads cppgen.yaml over the embedded defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/cppgen/services/cppgen/artifact"
	"github.com/AleutianAI/cppgen/services/cppgen/callgraph"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "cppgen.yaml"

// MaxFileSize bounds the configuration file.
const MaxFileSize = 1 << 20

// Sink names accepted by output.sink.
const (
	SinkFile   = "file"
	SinkBadger = "badger"
	SinkGCS    = "gcs"
	SinkS3     = "s3"
)

// Environment variables that override secrets from the file.
const (
	EnvNeo4jPassword = "CPPGEN_NEO4J_PASSWORD"
	EnvS3AccessKey   = "CPPGEN_S3_ACCESS_KEY"
	EnvS3SecretKey   = "CPPGEN_S3_SECRET_KEY"
)

// Config is the complete tool configuration.
//
// Thread Safety: Immutable after Load; safe for concurrent reads.
type Config struct {
	Stub      StubConfig         `yaml:"stub"`
	Pipeline  PipelineConfig     `yaml:"pipeline"`
	Callgraph CallgraphConfig    `yaml:"callgraph"`
	Output    OutputConfig       `yaml:"output"`
	Badger    BadgerConfig       `yaml:"badger"`
	GCS       artifact.GCSConfig `yaml:"gcs"`
	S3        artifact.S3Config  `yaml:"s3"`
	Neo4j     Neo4jConfig        `yaml:"neo4j"`

	// Source is the file the config was read from, or "" for defaults only.
	Source string `yaml:"-"`
}

// StubConfig controls stub naming and selection.
type StubConfig struct {
	Prefix   string   `yaml:"prefix"`
	Guard    string   `yaml:"guard"`
	Includes []string `yaml:"includes"`

	// Include and Exclude are path.Match globs over qualified interface names.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// PipelineConfig controls ingestion.
type PipelineConfig struct {
	Workers int  `yaml:"workers"`
	Strict  bool `yaml:"strict"`
}

// CallgraphConfig bounds the call graph.
type CallgraphConfig struct {
	MaxNodes int      `yaml:"max_nodes"`
	MaxEdges int      `yaml:"max_edges"`
	Ignore   []string `yaml:"ignore"`
}

// OutputConfig names the artifacts and where they go.
type OutputConfig struct {
	Dir              string `yaml:"dir"`
	StubFile         string `yaml:"stub_file"`
	DeclarationsFile string `yaml:"declarations_file"`
	GraphFile        string `yaml:"graph_file"`
	GraphJSONFile    string `yaml:"graph_json_file"`
	Sink             string `yaml:"sink"`
	PerRun           bool   `yaml:"per_run"`
	Project          string `yaml:"project"`
	Label            string `yaml:"label"`
}

// BadgerConfig locates the artifact store.
type BadgerConfig struct {
	Dir string `yaml:"dir"`
}

// Neo4jConfig enables loading the call graph into Neo4j.
type Neo4jConfig struct {
	Enabled               bool `yaml:"enabled"`
	callgraph.Neo4jConfig `yaml:",inline"`
}

// Defaults returns the embedded default configuration.
func Defaults() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return &cfg, nil
}

// Load reads the configuration.
//
// Description:
//
//	Starts from the embedded defaults and overlays the YAML file.
//	An empty path tries DefaultFileName in the working directory; a missing
//	file is not an error. Secrets are then overridden from the environment
//	and the result is validated.
//
// Inputs:
//
//	file - Config file path, or "" for the default lookup.
//
// Outputs:
//
//	*Config - The validated configuration. Never nil on success.
//	error - Non-nil if the file is unreadable, oversized, malformed or
//	        fails validation. A missing explicit path is an error.
func Load(file string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	explicit := file != ""
	if !explicit {
		file = DefaultFileName
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if len(data) > MaxFileSize {
			return nil, fmt.Errorf("config %s exceeds maximum size (%d > %d)", file, len(data), MaxFileSize)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", file, err)
		}
		cfg.Source = file
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", describe(cfg.Source), err)
	}

	slog.Debug("config loaded",
		slog.String("source", describe(cfg.Source)),
		slog.String("sink", cfg.Output.Sink),
		slog.Int("workers", cfg.Pipeline.Workers),
	)
	return cfg, nil
}

func describe(source string) string {
	if source == "" {
		return "<defaults>"
	}
	return source
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvNeo4jPassword); v != "" {
		c.Neo4j.Password = v
	}
	if v := os.Getenv(EnvS3AccessKey); v != "" {
		c.S3.AccessKey = v
	}
	if v := os.Getenv(EnvS3SecretKey); v != "" {
		c.S3.SecretKey = v
	}
}

// Validate checks value ranges and the selected sink's parameters.
func (c *Config) Validate() error {
	if c.Stub.Prefix == "" {
		return errors.New("stub.prefix must not be empty")
	}
	for _, g := range append(append([]string{}, c.Stub.Include...), c.Stub.Exclude...) {
		if _, err := path.Match(g, ""); err != nil {
			return fmt.Errorf("stub filter %q: %w", g, err)
		}
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must be >= 0, got %d", c.Pipeline.Workers)
	}
	if c.Callgraph.MaxNodes <= 0 || c.Callgraph.MaxEdges <= 0 {
		return errors.New("callgraph.max_nodes and callgraph.max_edges must be positive")
	}

	switch c.Output.Sink {
	case SinkFile:
		if strings.TrimSpace(c.Output.Dir) == "" {
			return errors.New("output.dir is required for the file sink")
		}
	case SinkBadger:
		if strings.TrimSpace(c.Badger.Dir) == "" {
			return errors.New("badger.dir is required for the badger sink")
		}
	case SinkGCS:
		if strings.TrimSpace(c.GCS.Bucket) == "" {
			return errors.New("gcs.bucket is required for the gcs sink")
		}
	case SinkS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return errors.New("s3.endpoint and s3.bucket are required for the s3 sink")
		}
	default:
		return fmt.Errorf("output.sink must be one of file, badger, gcs, s3; got %q", c.Output.Sink)
	}

	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return errors.New("neo4j.uri is required when neo4j is enabled")
	}
	return nil
}

// InterfaceFilter returns a predicate selecting interfaces by the Include
// and Exclude globs. Exclude wins.
func (c *Config) InterfaceFilter() func(name string) bool {
	include := c.Stub.Include
	exclude := c.Stub.Exclude
	return func(name string) bool {
		if matchAny(exclude, name) {
			return false
		}
		return len(include) == 0 || matchAny(include, name)
	}
}

// IgnoreCallee returns a predicate for the callgraph.ignore prefixes.
func (c *Config) IgnoreCallee() func(name string) bool {
	prefixes := c.Callgraph.Ignore
	return func(name string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}
}

func matchAny(globs []string, name string) bool {
	for _, g := range globs {
		if ok, _ := path.Match(g, name); ok {
			return true
		}
	}
	return false
}

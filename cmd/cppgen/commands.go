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
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cppgen/services/cppgen/config"
	"github.com/AleutianAI/cppgen/services/cppgen/emit"
	"github.com/AleutianAI/cppgen/services/cppgen/pipeline"
)

// analyze runs the pipeline over args without delivering the bundle.
func (a *app) analyze(ctx context.Context, args []string, opts ...pipeline.Option) (*pipeline.Result, error) {
	paths, err := expandInputs(args)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(a.cfg, append([]pipeline.Option{pipeline.WithLogger(a.logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, pipeline.FileSources(paths...))
}

// writeOutput writes data to path, or to the command's stdout when path
// is empty.
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func newRunCmd(a *app) *cobra.Command {
	var (
		watchInputsFlag bool
		sink            string
		outDir          string
		strict          bool
		project         string
		label           string
	)
	cmd := &cobra.Command{
		Use:   "run <inputs...>",
		Short: "Generate every artifact and deliver it to the configured sink",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if sink != "" {
				a.cfg.Output.Sink = sink
			}
			if outDir != "" {
				a.cfg.Output.Dir = outDir
			}
			if project != "" {
				a.cfg.Output.Project = project
			}
			if label != "" {
				a.cfg.Output.Label = label
			}
			a.cfg.Pipeline.Strict = a.cfg.Pipeline.Strict || strict
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			s, closeSink, err := openSink(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer closeSink()
			opts := []pipeline.Option{pipeline.WithSink(s)}

			loader, closeLoader, err := openGraphLoader(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer closeLoader()
			if loader != nil {
				opts = append(opts, pipeline.WithGraphLoader(loader))
			}

			once := func(ctx context.Context) error {
				res, err := a.analyze(ctx, args, opts...)
				if err != nil {
					return err
				}
				renderSummary(cmd.OutOrStdout(), res)
				return nil
			}
			if !watchInputsFlag {
				return once(ctx)
			}
			return watchInputs(ctx, args, watchDebounce, a.logger, once)
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&watchInputsFlag, "watch", "w", false, "re-run whenever an input changes")
	f.StringVar(&sink, "sink", "", "override output.sink: "+config.SinkFile+", "+config.SinkBadger+", "+config.SinkGCS+", "+config.SinkS3)
	f.StringVarP(&outDir, "out", "o", "", "override output.dir for the file sink")
	f.BoolVar(&strict, "strict", false, "fail on unresolved references")
	f.StringVar(&project, "project", "", "override output.project")
	f.StringVar(&label, "label", "", "override output.label")
	return cmd
}

func newStubCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "stub <inputs...>",
		Short: "Print the generated C++ stubs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.analyze(cmd.Context(), args)
			if err != nil {
				return err
			}
			src, err := emit.StubSource(res.Stubs, emit.StubOptions{
				Includes: res.Includes,
				Guard:    a.cfg.Stub.Guard,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, src)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newDeclarationsCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "declarations <inputs...>",
		Short: "Print the class declarations in definition order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.analyze(cmd.Context(), args)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, emit.Declarations(res.Table, res.Classification))
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <inputs...>",
		Short: "Show member classification and definition order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.analyze(cmd.Context(), args)
			if err != nil {
				return err
			}
			renderClassification(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func newCallgraphCmd(a *app) *cobra.Command {
	var (
		out    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "callgraph <inputs...>",
		Short: "Print the call graph as GraphML or JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "graphml" && format != "json" {
				return fmt.Errorf("unknown format %q (want graphml or json)", format)
			}
			res, err := a.analyze(cmd.Context(), args)
			if err != nil {
				return err
			}
			var data []byte
			if format == "json" {
				data, err = json.MarshalIndent(res.CallGraph.Graph.ToSerializable(), "", "  ")
				data = append(data, '\n')
			} else {
				data, err = emit.GraphML(res.CallGraph.Graph)
			}
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, data)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "graphml", "graphml or json")
	return cmd
}

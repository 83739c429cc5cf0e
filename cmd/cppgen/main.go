// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command cppgen generates instrumented C++ test stubs, ordered class
// declarations and call graphs from C++ headers or declaration records.
//
// Usage:
//
//	cppgen run include/ --config cppgen.yaml
//	cppgen run include/widget.hpp --watch
//	cppgen stub include/ifs.hpp -o stubs.hpp
//	cppgen classify decls.json
//	cppgen callgraph src/ --format json
//	cppgen runs list --project demo
//	cppgen runs show 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --file stubs.hpp
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cppgen/services/cppgen/config"
)

// app holds the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	logJSON    bool

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "cppgen",
		Short: "C++ stub, declaration and call-graph generator",
		Long: `cppgen reads C++ headers or JSON/YAML declaration records, classifies
class members as owned or referenced, generates instrumented stubs for every
pure-virtual interface and builds a call graph from function bodies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default ./"+config.DefaultFileName+" if present)")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&a.logJSON, "log-json", false, "emit JSON logs")

	root.AddCommand(
		newRunCmd(a),
		newStubCmd(a),
		newDeclarationsCmd(a),
		newClassifyCmd(a),
		newCallgraphCmd(a),
		newRunsCmd(a),
	)
	return root
}

// setup builds the logger and loads the configuration.
func (a *app) setup(w io.Writer) error {
	level, err := parseLevel(a.logLevel)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if a.logJSON {
		handler = slog.NewJSONHandler(w, opts)
	}
	a.logger = slog.New(handler)
	slog.SetDefault(a.logger)

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cppgen/services/cppgen/artifact"
)

// latestRun selects the newest run of the project in "runs show".
const latestRun = "latest"

func newRunsCmd(a *app) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs stored by the badger sink",
	}
	cmd.PersistentFlags().StringVar(&project, "project", "", "project (default output.project)")

	projectOf := func() string {
		if project != "" {
			return project
		}
		return a.cfg.Output.Project
	}
	openStore := func() (*artifact.Store, error) {
		return artifact.OpenStore(a.cfg.Badger.Dir, a.logger)
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.List(cmd.Context(), projectOf(), limit)
			if err != nil {
				return err
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list")

	var file string
	show := &cobra.Command{
		Use:   "show <run-id|latest>",
		Short: "Show a stored run or print one of its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var (
				b    *artifact.Bundle
				meta *artifact.Metadata
			)
			if args[0] == latestRun {
				b, meta, err = store.LoadLatest(cmd.Context(), projectOf())
			} else {
				b, meta, err = store.Load(cmd.Context(), args[0])
			}
			if err != nil {
				return fmt.Errorf("loading run %s: %w", args[0], err)
			}
			if file != "" {
				f, ok := b.File(file)
				if !ok {
					return fmt.Errorf("run %s has no file %q", meta.RunID, file)
				}
				return writeOutput(cmd, "", f.Content)
			}
			renderRuns(cmd.OutOrStdout(), []*artifact.Metadata{meta})
			for _, p := range meta.Paths {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
			}
			return nil
		},
	}
	show.Flags().StringVar(&file, "file", "", "print this file from the run")

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

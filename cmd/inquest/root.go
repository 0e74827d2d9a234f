// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root inquest command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inquest",
		Short:         "Inquest is an LLM-driven investigation service",
		Long:          "Inquest runs tool-assisted investigations: a reasoning engine works a question over datasets, document indexes, and code search behind an authenticated tool gateway.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newServeCmd(),
		newAskCmd(),
		newToolsCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)

	return root
}

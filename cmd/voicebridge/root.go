// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root voicebridge command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "voicebridge",
		Short:         "voicebridge connects a voice platform to streaming LLMs",
		Long:          "voicebridge receives signed turn webhooks from a real-time voice platform, drives a streaming LLM over the session history, and streams the spoken reply back as server-sent events.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newStartCmd(),
		newVersionCmd(),
		newSecretCmd(),
	)

	return root
}

// setupLogging installs the default slog handler from config, with the
// verbose flag forcing debug level.
func setupLogging(level, format string, verbose bool) {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

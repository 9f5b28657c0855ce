// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voicebridge-dev/voicebridge/internal/config"
	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the voicebridge webhook server",
		Long:  "Load configuration, wire the LLM provider and session store, and serve the webhook endpoint.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		cfgPath = discoverConfigPath()
	}
	config.WarnInsecurePermissions(cfgPath)

	cfg, err := config.Load(cfgPath, secretStoreFactory())
	if err != nil {
		return vberr.Wrapf(err, vberr.CodeCLISetupFailure, "loading config")
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Networking.Listen = listen
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(cfg.Logging.Level, cfg.Logging.Format, verbose)

	bridge, err := WireBridge(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			slog.Warn("closing bridge", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting voicebridge",
		"listen", cfg.Networking.Listen,
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model,
	)

	if err := bridge.Start(ctx); err != nil {
		return vberr.Wrapf(err, vberr.CodeServerStartFailure, "running server")
	}

	slog.Info("voicebridge stopped")
	return nil
}

// discoverConfigPath returns the default config file path, bootstrapping a
// commented default there on first run. Empty means run on defaults only.
func discoverConfigPath() string {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return config.BootstrapConfig()
}

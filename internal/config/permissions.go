// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the config file is group- or
// world-readable, since it may hold the webhook secret or an API key. It is
// best effort and never fails startup.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	const groupRead fs.FileMode = 0o040
	const otherRead fs.FileMode = 0o004

	if info.Mode().Perm()&(groupRead|otherRead) != 0 {
		slog.Warn("config file is readable by other users; secrets may be exposed",
			"path", path,
			"mode", info.Mode(),
			"recommended", "0600",
		)
	}
}

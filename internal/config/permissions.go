// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions checks if the config file is group- or
// world-readable and logs a warning if so. The config can carry the JWT
// secret and engine API keys, so anything looser than 0600 exposes
// credentials to other users on the host. Best effort only; startup is
// never blocked.
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
		slog.Warn(
			"config file has insecure permissions, secrets may be exposed to other users",
			"path", path,
			"mode", info.Mode(),
			"recommended", "0600",
		)
	}
}

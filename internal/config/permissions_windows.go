// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

//go:build windows

package config

// WarnInsecurePermissions is a no-op on Windows, where POSIX permission
// bits do not map onto the ACL model.
func WarnInsecurePermissions(_ string) {}

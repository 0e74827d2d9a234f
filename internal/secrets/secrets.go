// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

// Package secrets keeps credentials out of config files. Config values may
// reference the OS keyring (keyring://service/key) or the environment
// (env://VAR) and are resolved after loading.
package secrets

// Store provides secure secret storage operations. Implementations may use
// OS keyrings, encrypted files, or other backends.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value for the given service and key.
	// Returns secret.get.not_found (via inqerr.HasCode) if the key does
	// not exist.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	Delete(service, key string) error
}

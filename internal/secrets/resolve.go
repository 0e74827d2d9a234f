// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package secrets

import (
	"os"
	"strings"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

const (
	keyringScheme = "keyring://"
	envScheme     = "env://"
)

// IsReference reports whether value uses one of the secret URI schemes.
func IsReference(value string) bool {
	return strings.HasPrefix(value, keyringScheme) || strings.HasPrefix(value, envScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !strings.HasPrefix(uri, keyringScheme) {
		return "", "", inqerr.Errorf(inqerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", inqerr.Errorf(inqerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return parts[0], parts[1], nil
}

// Resolve turns a secret reference into its value. Plain values pass
// through unchanged.
func Resolve(store Store, value string) (string, error) {
	switch {
	case strings.HasPrefix(value, envScheme):
		name := strings.TrimPrefix(value, envScheme)
		if name == "" {
			return "", inqerr.Errorf(inqerr.CodeSecretInvalidInput,
				"invalid env URI %q: expected env://VAR", value)
		}
		resolved, ok := os.LookupEnv(name)
		if !ok {
			return "", inqerr.Errorf(inqerr.CodeSecretNotFound,
				"environment variable %s is not set", name)
		}
		return resolved, nil

	case strings.HasPrefix(value, keyringScheme):
		service, key, err := ParseKeyringURI(value)
		if err != nil {
			return "", err
		}
		secret, err := store.Retrieve(service, key)
		if err != nil {
			return "", inqerr.Wrapf(err, inqerr.CodeSecretResolveFailure,
				"resolving keyring URI %q", value)
		}
		return secret, nil

	default:
		return value, nil
	}
}

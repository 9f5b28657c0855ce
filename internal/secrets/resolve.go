// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package secrets

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", vberr.Errorf(vberr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, keyringScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", vberr.Errorf(vberr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return parts[0], parts[1], nil
}

// Resolve returns the secret behind a keyring:// URI, or value unchanged
// when it is not a keyring URI.
func Resolve(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Get(service, key)
	if err != nil {
		return "", vberr.Wrapf(err, vberr.CodeSecretResolveFailure, "resolving keyring URI %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces keyring:// string values in v with the
// secrets they point at. Failures keep the original URI and log a warning;
// the error surfaces later when the value is actually used.
func ResolveViperSecrets(v *viper.Viper, store Store) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := Resolve(store, val)
		if err != nil {
			slog.Warn("keeping unresolved keyring URI", "config_key", key, "error", err)
			continue
		}
		v.Set(key, resolved)
	}
}

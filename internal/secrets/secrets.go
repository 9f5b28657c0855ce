// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

// Package secrets stores webhook and provider credentials in the OS keyring
// so they stay out of config files and shell history.
package secrets

// DefaultService is the keyring service name credentials are stored under.
const DefaultService = "voicebridge"

// Store provides secure secret storage operations.
type Store interface {
	// Set saves a secret value under the given service and key.
	Set(service, key, value string) error

	// Get fetches the secret value for the given service and key. The
	// returned error carries CodeSecretNotFound when the key does not exist.
	Get(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}

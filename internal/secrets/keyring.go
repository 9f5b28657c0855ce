// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
)

// indexKeySuffix forms the key holding the JSON list of stored key names.
// go-keyring cannot enumerate keys, so List works off this index.
const indexKeySuffix = "::index"

// KeyringStore implements Store on the OS keyring: Keychain on macOS,
// secret-service on Linux, Credential Manager on Windows.
type KeyringStore struct{}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Set(service, key, value string) error {
	if err := checkNames(service, key); err != nil {
		return err
	}

	if err := keyring.Set(service, key, value); err != nil {
		return vberr.Wrapf(err, vberr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return s.indexAdd(service, key)
}

func (s *KeyringStore) Get(service, key string) (string, error) {
	if err := checkNames(service, key); err != nil {
		return "", err
	}

	val, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", vberr.Errorf(vberr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", vberr.Wrapf(err, vberr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkNames(service, key); err != nil {
		return err
	}

	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return vberr.Errorf(vberr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return vberr.Wrapf(err, vberr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}
	return s.indexRemove(service, key)
}

func (s *KeyringStore) List(service string) ([]string, error) {
	if service == "" {
		return nil, vberr.New(vberr.CodeSecretInvalidInput, "secrets: service must not be empty")
	}
	return s.indexLoad(service)
}

func checkNames(service, key string) error {
	if service == "" {
		return vberr.New(vberr.CodeSecretInvalidInput, "secrets: service must not be empty")
	}
	if key == "" {
		return vberr.New(vberr.CodeSecretInvalidInput, "secrets: key must not be empty")
	}
	return nil
}

func (s *KeyringStore) indexLoad(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+indexKeySuffix)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, vberr.Wrapf(err, vberr.CodeSecretListFailure, "loading key index for %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, vberr.Wrapf(err, vberr.CodeSecretListFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) indexSave(service string, keys []string) error {
	indexKey := service + indexKeySuffix

	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index failed", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return vberr.Wrapf(err, vberr.CodeSecretListFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return vberr.Wrapf(err, vberr.CodeSecretListFailure, "saving key index for %s", service)
	}
	return nil
}

func (s *KeyringStore) indexAdd(service, key string) error {
	keys, err := s.indexLoad(service)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return s.indexSave(service, append(keys, key))
}

func (s *KeyringStore) indexRemove(service, key string) error {
	keys, err := s.indexLoad(service)
	if err != nil {
		return err
	}
	return s.indexSave(service, slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}

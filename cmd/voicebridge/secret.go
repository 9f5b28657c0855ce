// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voicebridge-dev/voicebridge/internal/secrets"
	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. Declared as a variable so
// tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long:  "Store, list, and delete secrets kept under the voicebridge service in the operating system keyring. Config values may reference them as keyring://voicebridge/<name>.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Store a secret under the given name",
		Args:  cobra.ExactArgs(2),
		RunE:  runSecretSet,
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored secret names",
		RunE:  runSecretList,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name, value := args[0], args[1]
	store := secretStoreFactory()

	if err := store.Set(secrets.DefaultService, name, value); err != nil {
		return vberr.Wrapf(err, vberr.CodeSecretStoreFailure, "storing secret %q", name)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret: %s (reference it as keyring://%s/%s)\n",
		name, secrets.DefaultService, name)
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	store := secretStoreFactory()
	keys, err := store.List(secrets.DefaultService)
	if err != nil {
		return vberr.Wrapf(err, vberr.CodeSecretListFailure, "listing secrets")
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	store := secretStoreFactory()

	if err := store.Delete(secrets.DefaultService, name); err != nil {
		if vberr.HasCode(err, vberr.CodeSecretNotFound) {
			return vberr.Errorf(vberr.CodeSecretNotFound, "secret %q not found", name)
		}
		return vberr.Wrapf(err, vberr.CodeSecretDeleteFailure, "deleting secret %q", name)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}

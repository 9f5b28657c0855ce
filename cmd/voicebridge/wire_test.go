// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/voicebridge-dev/voicebridge/internal/config"
	"github.com/voicebridge-dev/voicebridge/internal/provider"
	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nullProvider satisfies provider.Provider for wiring tests.
type nullProvider struct {
	closed bool
}

func (p *nullProvider) Name() string { return "null" }

func (p *nullProvider) Available(context.Context) bool { return true }

func (p *nullProvider) Close() error { p.closed = true; return nil }

func (p *nullProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: "null"}, nil
}

func (p *nullProvider) Chat(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent)
	close(ch)
	return ch, nil
}

func withFakeFactory(t *testing.T, name string, p provider.Provider, err error) {
	t.Helper()
	orig, had := providerFactories[name]
	providerFactories[name] = func(config.ProviderConfig) (provider.Provider, error) {
		return p, err
	}
	t.Cleanup(func() {
		if had {
			providerFactories[name] = orig
		} else {
			delete(providerFactories, name)
		}
	})
}

func testConfig() *config.Config {
	cfg, err := config.Load("", nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestWireBridge(t *testing.T) {
	fake := &nullProvider{}
	withFakeFactory(t, "google", fake, nil)

	bridge, err := WireBridge(testConfig())
	require.NoError(t, err)

	assert.NotNil(t, bridge.Server)
	assert.NotNil(t, bridge.Sessions)
	assert.Same(t, fake, bridge.Provider)

	require.NoError(t, bridge.Close())
	assert.True(t, fake.closed)
}

func TestWireBridge_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Provider.Name = "mystery"

	_, err := WireBridge(cfg)
	require.Error(t, err)
	assert.True(t, vberr.HasCode(err, vberr.CodeProviderNotFound))
}

func TestWireBridge_FactoryFailure(t *testing.T) {
	withFakeFactory(t, "google", nil, errors.New("no api key"))

	_, err := WireBridge(testConfig())
	require.Error(t, err)
	assert.True(t, vberr.HasCode(err, vberr.CodeCLISetupFailure))
}

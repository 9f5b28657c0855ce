// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package main

import (
	"context"
	"errors"
	"time"

	"github.com/voicebridge-dev/voicebridge/internal/config"
	"github.com/voicebridge-dev/voicebridge/internal/orchestrator"
	"github.com/voicebridge-dev/voicebridge/internal/provider"
	anthropicprov "github.com/voicebridge-dev/voicebridge/internal/provider/anthropic"
	googleprov "github.com/voicebridge-dev/voicebridge/internal/provider/google"
	openaiprov "github.com/voicebridge-dev/voicebridge/internal/provider/openai"
	"github.com/voicebridge-dev/voicebridge/internal/server"
	"github.com/voicebridge-dev/voicebridge/internal/session"
	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
)

// Bridge holds all wired subsystems and manages their lifecycle.
type Bridge struct {
	Server   *server.Server
	Sessions *session.MemoryStore
	Provider provider.Provider

	maxIdle time.Duration
}

// providerFactories maps provider names to constructors. Declared as a
// variable so tests can inject fakes.
var providerFactories = map[string]func(config.ProviderConfig) (provider.Provider, error){
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey})
	},
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey})
	},
}

// WireBridge creates all subsystems and wires them together.
func WireBridge(cfg *config.Config) (*Bridge, error) {
	factory, ok := providerFactories[cfg.Provider.Name]
	if !ok {
		return nil, vberr.Errorf(vberr.CodeProviderNotFound,
			"unknown provider %q, expected one of %v", cfg.Provider.Name, provider.Names())
	}

	llm, err := factory(cfg.Provider)
	if err != nil {
		return nil, vberr.Wrapf(err, vberr.CodeCLISetupFailure, "creating %s provider", cfg.Provider.Name)
	}

	sessions := session.NewMemoryStore()

	orch := orchestrator.New(sessions, llm, orchestrator.Config{
		Model:          cfg.Provider.Model,
		SystemPrompt:   cfg.Agent.SystemPrompt,
		WelcomeMessage: cfg.Agent.WelcomeMessage,
		Temperature:    cfg.Provider.Temperature,
		MaxTokens:      cfg.Provider.MaxTokens,
	})

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Networking.CORSOrigins,
	})
	if err != nil {
		_ = llm.Close()
		return nil, vberr.Wrapf(err, vberr.CodeCLISetupFailure, "creating server")
	}

	srv.RegisterWebhookHandler(server.NewWebhookHandler(server.WebhookConfig{
		Secret:          cfg.Webhook.Secret,
		SecretVar:       config.WebhookSecretEnvVar,
		APIKey:          cfg.Provider.APIKey,
		APIKeyVar:       provider.KeyEnvVar(cfg.Provider.Name),
		SignatureHeader: cfg.Webhook.SignatureHeader,
	}, orch))
	srv.RegisterStatusReporter(llm)

	return &Bridge{
		Server:   srv,
		Sessions: sessions,
		Provider: llm,
		maxIdle:  cfg.Sessions.MaxIdle,
	}, nil
}

// Start runs the HTTP server and the idle-session sweeper, blocking until
// the context is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	if b.maxIdle > 0 {
		go b.sweepIdleSessions(ctx)
	}
	return b.Server.Start(ctx)
}

// sweepIdleSessions periodically evicts sessions with no recent turns so a
// long-running process does not accumulate history without bound.
func (b *Bridge) sweepIdleSessions(ctx context.Context) {
	interval := b.maxIdle / 2
	if interval > time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sessions.EvictIdle(b.maxIdle)
		}
	}
}

// Close releases all resources held by the bridge.
func (b *Bridge) Close() error {
	var errs []error
	if b.Provider != nil {
		if err := b.Provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

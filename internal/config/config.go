// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

// Package config loads and validates the voicebridge configuration from
// YAML, environment variables, and the OS keyring.
package config

import (
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/voicebridge-dev/voicebridge/internal/provider"
	"github.com/voicebridge-dev/voicebridge/internal/secrets"
	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
)

// WebhookSecretEnvVar names the environment variable carrying the shared
// webhook signing secret when it is not set in config.
const WebhookSecretEnvVar = "LAYERCODE_WEBHOOK_SECRET"

// DefaultSystemPrompt steers replies toward text a TTS model can speak.
const DefaultSystemPrompt = "You are a helpful conversation assistant. " +
	"You should respond to the user's message in a conversational manner. " +
	"Your output will be spoken by a TTS model. " +
	"You should respond in a way that is easy for the TTS model to speak and sound natural."

// DefaultWelcomeMessage greets the caller when a session starts.
const DefaultWelcomeMessage = "Welcome to Layercode. How can I help you today?"

// Config is the top-level voicebridge configuration.
type Config struct {
	Networking NetworkingConfig `mapstructure:"networking"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// NetworkingConfig controls how voicebridge listens for webhook deliveries.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// ProviderConfig selects the LLM backend and its credentials.
type ProviderConfig struct {
	Name        string   `mapstructure:"name"`
	Model       string   `mapstructure:"model"`
	APIKey      string   `mapstructure:"api_key"`
	Temperature *float32 `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
}

// AgentConfig holds the conversational persona.
type AgentConfig struct {
	SystemPrompt   string `mapstructure:"system_prompt"`
	WelcomeMessage string `mapstructure:"welcome_message"`
}

// WebhookConfig holds webhook authentication settings.
type WebhookConfig struct {
	Secret          string `mapstructure:"secret"`
	SignatureHeader string `mapstructure:"signature_header"`
}

// SessionsConfig controls in-memory session retention. MaxIdle of zero
// keeps sessions for the life of the process.
type SessionsConfig struct {
	MaxIdle time.Duration `mapstructure:"max_idle"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix VOICEBRIDGE_). When store is
// non-nil, keyring:// values are resolved through it. A missing API key or
// webhook secret is not a load error; the webhook endpoint reports it per
// request.
func Load(path string, store secrets.Store) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("networking.listen", "127.0.0.1:8787")
	v.SetDefault("provider.name", "google")
	v.SetDefault("provider.model", "gemini-2.0-flash-001")
	v.SetDefault("agent.system_prompt", DefaultSystemPrompt)
	v.SetDefault("agent.welcome_message", DefaultWelcomeMessage)
	v.SetDefault("webhook.signature_header", "layercode-signature")
	v.SetDefault("sessions.max_idle", time.Duration(0))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Environment
	v.SetEnvPrefix("VOICEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, vberr.Errorf(vberr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	if store != nil {
		secrets.ResolveViperSecrets(v, store)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, vberr.Errorf(vberr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	cfg.applySecretEnvFallbacks()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, vberr.Errorf(vberr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// applySecretEnvFallbacks fills credentials from the well-known environment
// variables the hosted platform documents, so a bare deployment works with
// nothing but env vars set.
func (c *Config) applySecretEnvFallbacks() {
	if c.Provider.APIKey == "" {
		if envVar := provider.KeyEnvVar(c.Provider.Name); envVar != "" {
			c.Provider.APIKey = os.Getenv(envVar)
		}
	}
	if c.Webhook.Secret == "" {
		c.Webhook.Secret = os.Getenv(WebhookSecretEnvVar)
	}
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateProvider()...)
	errs = append(errs, c.validateSessions()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, vberr.New(vberr.CodeConfigValidateInvalidValue,
			"config: networking.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		errs = append(errs, vberr.Errorf(vberr.CodeConfigValidateInvalidValue,
			"config: networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err,
		))
		return errs
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, vberr.Errorf(vberr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, vberr.Errorf(vberr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateProvider() []error {
	var errs []error

	if provider.KeyEnvVar(c.Provider.Name) == "" {
		errs = append(errs, vberr.Errorf(vberr.CodeConfigValidateInvalidValue,
			"config: provider.name must be one of %v, got %q",
			provider.Names(), c.Provider.Name,
		))
	}

	if c.Provider.Model == "" {
		errs = append(errs, vberr.New(vberr.CodeConfigValidateInvalidValue,
			"config: provider.model must not be empty"))
	}

	if t := c.Provider.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, vberr.Errorf(vberr.CodeConfigValidateInvalidValue,
			"config: provider.temperature must be between 0 and 2, got %g", *t))
	}

	if c.Provider.MaxTokens < 0 {
		errs = append(errs, vberr.Errorf(vberr.CodeConfigValidateInvalidValue,
			"config: provider.max_tokens must not be negative, got %d", c.Provider.MaxTokens))
	}

	return errs
}

func (c *Config) validateSessions() []error {
	if c.Sessions.MaxIdle < 0 {
		return []error{vberr.Errorf(vberr.CodeConfigValidateInvalidValue,
			"config: sessions.max_idle must not be negative, got %s", c.Sessions.MaxIdle)}
	}
	return nil
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, vberr.Errorf(vberr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, vberr.Errorf(vberr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q",
			c.Logging.Format,
		))
	}

	return errs
}

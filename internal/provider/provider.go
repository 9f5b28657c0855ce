// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package provider

import (
	"context"
)

// Provider is the core interface for streaming LLM providers.
//
// Chat follows a two-phase protocol: the returned channel yields zero or
// more text_delta events, then exactly one terminal event (done on
// success, error on failure) and is closed. Callers must not commit
// conversation history until the done event arrives.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// ChatRequest represents a request to the LLM.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Options      ChatOptions
}

// ChatOptions contains model configuration.
type ChatOptions struct {
	Temperature   *float32
	MaxTokens     int
	StopSequences []string
}

// Message represents a conversation message.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// ChatEvent is a streaming response event.
type ChatEvent struct {
	Type  EventType
	Text  string
	Usage *Usage
	Error string
}

// EventType defines the type of chat event.
type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

// Usage tracks token consumption.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
}

// ProviderStatus indicates provider health.
type ProviderStatus struct {
	Available bool
	Provider  string
	Message   string
}

// keyEnvVars maps a provider name to the platform environment variable
// that carries its API key. The variable name appears verbatim in the
// "<NAME> is not set" configuration error.
var keyEnvVars = map[string]string{
	"google":    "GOOGLE_GENERATIVE_AI_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// KeyEnvVar returns the API-key environment variable for a provider name,
// or "" for an unknown provider.
func KeyEnvVar(name string) string {
	return keyEnvVars[name]
}

// Names lists the supported provider backends.
func Names() []string {
	return []string{"google", "openai", "anthropic"}
}

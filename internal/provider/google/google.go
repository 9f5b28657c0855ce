// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/voicebridge-dev/voicebridge/internal/provider"
	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
)

// Config holds Google provider configuration.
type Config struct {
	APIKey string
}

// Provider implements provider.Provider using the Google Gemini API.
// This is the reference backend for the voice bridge.
type Provider struct {
	client *genai.Client
	config Config
	health *provider.HealthTracker
}

// New creates a new Google provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, vberr.New(vberr.CodeProviderRequestInvalid, "google: missing api_key in config", vberr.FieldProvider("google"))
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, vberr.Wrapf(err, vberr.CodeProviderUpstreamFailure, "google: creating client")
	}

	health, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, vberr.Wrapf(err, vberr.CodeProviderRequestInvalid, "google: creating health tracker")
	}

	return &Provider{
		client: client,
		config: cfg,
		health: health,
	}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, vberr.Wrapf(err, vberr.CodeProviderRequestInvalid, "google: converting messages")
	}

	config := buildConfig(req)

	eventCh := make(chan provider.ChatEvent, 100)

	go func() {
		defer close(eventCh)
		p.streamChat(ctx, req.Model, contents, config, eventCh)
	}()

	return eventCh, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{
		Available: p.Available(ctx),
		Provider:  "google",
		Message:   "ok",
	}, nil
}

func (p *Provider) Close() error { return nil }

// buildConfig converts a provider.ChatRequest into a genai.GenerateContentConfig.
func buildConfig(req provider.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.Options.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Options.Temperature)
	}

	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}

	if len(req.Options.StopSequences) > 0 {
		cfg.StopSequences = req.Options.StopSequences
	}

	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: req.SystemPrompt},
			},
		}
	}

	return cfg
}

// convertMessages transforms provider.Message slices into genai.Content slices.
// The Google GenAI SDK uses Content with Role and Parts; the assistant role
// maps to "model". System messages are excluded (handled via
// SystemInstruction in buildConfig).
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{
					{Text: msg.Content},
				},
			})
		case provider.MessageRoleAssistant:
			result = append(result, &genai.Content{
				Role: "model",
				Parts: []*genai.Part{
					{Text: msg.Content},
				},
			})
		case provider.MessageRoleSystem:
			continue
		default:
			return nil, vberr.Errorf(vberr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// streamChat runs the streaming loop, converting SDK responses into provider.ChatEvent values.
func (p *Provider) streamChat(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	ch chan<- provider.ChatEvent,
) {
	for result, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			p.health.RecordFailure()
			ch <- provider.ChatEvent{
				Type:  provider.EventTypeError,
				Error: err.Error(),
			}
			return
		}

		for _, candidate := range result.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					ch <- provider.ChatEvent{
						Type: provider.EventTypeTextDelta,
						Text: part.Text,
					}
				}
			}
		}

		if result.UsageMetadata != nil {
			ch <- provider.ChatEvent{
				Type: provider.EventTypeUsage,
				Usage: &provider.Usage{
					InputTokens:     int(result.UsageMetadata.PromptTokenCount),
					OutputTokens:    int(result.UsageMetadata.CandidatesTokenCount),
					CacheReadTokens: int(result.UsageMetadata.CachedContentTokenCount),
				},
			}
		}
	}

	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}
